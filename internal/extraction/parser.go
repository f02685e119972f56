// Package extraction turns semester report documents into subject-year records.
// PDF reports arrive as text already extracted by an external tool; HTML
// reports are parsed from their results table. Both also carry the student
// profile of each subject and the rates quoted for earlier years.
package extraction

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/henny-hen/DASOS-backend/internal/analysis"
	"github.com/henny-hen/DASOS-backend/internal/storage/models"
)

var ErrNoHeader = errors.New("no academic year header found")

var (
	headerPattern  = regexp.MustCompile(`(\d{4})\s*[/-]\s*(\d{2})\s*-\s*(.+?)\s*Semestre`)
	planLabel      = regexp.MustCompile(`^\s*PLAN DE ESTUDIOS\s*$`)
	planPattern    = regexp.MustCompile(`^\s*(\S+)\s*-\s*(.+?)\s*$`)
	subjectPattern = regexp.MustCompile(`^\s*(\d{9})\s*-\s*(.+?)\s+(\d+)\s+(\d+)\s+(\d+)\s+(\d+)\s*$`)
	tableYear      = regexp.MustCompile(`^(\d{4})\s*[/-]\s*(\d{2})$`)
	spaces         = regexp.MustCompile(`\s+`)

	profileHeading = regexp.MustCompile(`(?i)^\s*A1\.2\.?\s*Perfil de los alumnos`)
	historyHeading = regexp.MustCompile(`(?i)^\s*A2\.2\.\d+\.?\s*Tasa de\s+(\p{L}+)`)
	sectionHeading = regexp.MustCompile(`^\s*(?:A\d+(?:\.\d+)+\.?\s|ANEXO\b)`)
	yearsLine      = regexp.MustCompile(`^\s*(?:\d{4}\s*[/-]\s*\d{2}\s*)+$`)
	yearToken      = regexp.MustCompile(`(\d{4})\s*[/-]\s*(\d{2})`)
	codedRow       = regexp.MustCompile(`^\s*(\d{9})\s*-\s*(.+?)\s*$`)
	profilePattern = regexp.MustCompile(`^\s*(\d{9})\s*-\s*(.+?)\s+(\d+)\s+(\d+)\s+(\d+)\s*$`)
	reportDate     = regexp.MustCompile(`(?i)fecha[^0-9]*(\d{1,2})/(\d{1,2})/(\d{4})`)
	rateCell       = regexp.MustCompile(`^(?:-|\d+(?:[.,]\d+)?%?)$`)
	slashDate      = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
)

type section int

const (
	sectionCounts section = iota
	sectionProfile
	sectionHistory
	sectionSkipped
)

// Report is the parsed content of one document.
type Report struct {
	AcademicYear string
	Semester     string
	PlanCode     string
	PlanTitle    string
	ReportDate   string
	Records      []models.SubjectYearRecord
	Profiles     []models.StudentProfile
	History      []models.HistoricalRate
	Rejected     []RejectedRow
}

type RejectedRow struct {
	Line   int    `json:"line"`
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

// NormalizeYear maps "2022/23" and "2022-23" to "2022-23".
func NormalizeYear(start, end string) string {
	return start + "-" + end
}

// NormalizeSemester maps the report's semester wording to the API's codes.
func NormalizeSemester(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.HasPrefix(s, "primer"), s == "1", s == "1s", strings.HasPrefix(s, "1º"), strings.HasPrefix(s, "1er"):
		return "1S"
	case strings.HasPrefix(s, "segundo"), s == "2", s == "2s", strings.HasPrefix(s, "2º"):
		return "2S"
	}
	return strings.ToUpper(strings.TrimSpace(raw))
}

// ParseText reads a text block. Several blocks may follow each other; each
// header applies to the rows beneath it.
func ParseText(r io.Reader) (*Report, error) {
	rep := &Report{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	year, semester, plan := "", "", ""
	expectPlan := false
	lineNo := 0

	current := sectionCounts
	var histMetric string
	var histYears []string
	reject := func(line, reason string) {
		rep.Rejected = append(rep.Rejected, RejectedRow{Line: lineNo, Text: line, Reason: reason})
	}

	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		if m := headerPattern.FindStringSubmatch(line); m != nil {
			year = NormalizeYear(m[1], m[2])
			semester = NormalizeSemester(m[3])
			if rep.AcademicYear == "" {
				rep.AcademicYear, rep.Semester = year, semester
			}
			continue
		}

		if m := reportDate.FindStringSubmatch(line); m != nil {
			if rep.ReportDate == "" {
				rep.ReportDate = isoDate(m[3], m[2], m[1])
			}
			continue
		}

		if profileHeading.MatchString(line) {
			current = sectionProfile
			continue
		}
		if m := historyHeading.FindStringSubmatch(line); m != nil {
			current, histYears = sectionSkipped, nil
			if metric, ok := analysis.HistoryMetric(m[1]); ok {
				current, histMetric = sectionHistory, metric
			}
			continue
		}
		if sectionHeading.MatchString(line) {
			current = sectionCounts
			continue
		}

		if planLabel.MatchString(line) {
			expectPlan = true
			continue
		}
		if expectPlan {
			expectPlan = false
			if m := planPattern.FindStringSubmatch(line); m != nil {
				plan = m[1]
				if rep.PlanCode == "" {
					rep.PlanCode, rep.PlanTitle = m[1], m[2]
				}
				continue
			}
		}

		switch current {
		case sectionSkipped:
			continue
		case sectionHistory:
			if yearsLine.MatchString(line) {
				histYears = histYears[:0]
				for _, y := range yearToken.FindAllStringSubmatch(line, -1) {
					histYears = append(histYears, NormalizeYear(y[1], y[2]))
				}
				continue
			}
			m := codedRow.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			if year == "" {
				reject(line, "row before any academic year header")
				continue
			}
			rates, err := historyRow(m[1], m[2], histYears, histMetric, semester, year)
			if err != nil {
				reject(line, err.Error())
				continue
			}
			rep.History = append(rep.History, rates...)
			continue
		case sectionProfile:
			m := profilePattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			if year == "" {
				reject(line, "row before any academic year header")
				continue
			}
			profile, err := profileRow(m[1], year, semester, m[3], m[4], m[5])
			if err != nil {
				reject(line, err.Error())
				continue
			}
			rep.Profiles = append(rep.Profiles, profile)
			continue
		}

		m := subjectPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if year == "" {
			reject(line, "row before any academic year header")
			continue
		}

		nums, err := atois(m[3], m[4], m[5], m[6])
		if err != nil {
			reject(line, err.Error())
			continue
		}
		rep.Records = append(rep.Records, models.SubjectYearRecord{
			SubjectCode:  m[1],
			SubjectName:  spaces.ReplaceAllString(m[2], " "),
			PlanCode:     plan,
			Credits:      nums[0],
			AcademicYear: year,
			Semester:     semester,
			Enrolled:     nums[1],
			Participated: nums[2],
			Passed:       nums[3],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read text report: %w", err)
	}
	if rep.AcademicYear == "" {
		return nil, ErrNoHeader
	}
	return rep, nil
}

// ParseHTML reads every table.results in the document, plus table.profile and
// table.history when present. Year, semester and plan come from each table's
// data attributes, falling back to meta tags.
func ParseHTML(r io.Reader) (*Report, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML report: %w", err)
	}

	meta := func(name string) string {
		v, _ := doc.Find(fmt.Sprintf(`meta[name="%s"]`, name)).First().Attr("content")
		return strings.TrimSpace(v)
	}
	attr := func(table *goquery.Selection, name, fallback string) string {
		if v, ok := table.Attr("data-" + name); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return meta(fallback)
	}
	tableContext := func(table *goquery.Selection) (year, semester string) {
		year = attr(table, "academic-year", "academic_year")
		if m := tableYear.FindStringSubmatch(year); m != nil {
			year = NormalizeYear(m[1], m[2])
		}
		return year, NormalizeSemester(attr(table, "semester", "semester"))
	}

	rep := &Report{PlanTitle: strings.TrimSpace(doc.Find("title").First().Text())}
	rep.ReportDate = meta("report_date")
	if m := slashDate.FindStringSubmatch(rep.ReportDate); m != nil {
		rep.ReportDate = isoDate(m[3], m[2], m[1])
	}
	row := 0
	reject := func(text, reason string) {
		rep.Rejected = append(rep.Rejected, RejectedRow{Line: row, Text: text, Reason: reason})
	}
	// rows calls fn with the cleaned cells of every data row of table.
	rows := func(table *goquery.Selection, fn func(text string, cells []string)) {
		table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			tds := tr.Find("td")
			if tds.Length() == 0 {
				return
			}
			row++
			cells := make([]string, tds.Length())
			tds.Each(func(i int, td *goquery.Selection) {
				cells[i] = spaces.ReplaceAllString(strings.TrimSpace(td.Text()), " ")
			})
			fn(spaces.ReplaceAllString(strings.TrimSpace(tr.Text()), " "), cells)
		})
	}

	doc.Find("table.results").Each(func(_ int, table *goquery.Selection) {
		year, semester := tableContext(table)
		plan := attr(table, "plan", "plan_code")
		if rep.AcademicYear == "" {
			rep.AcademicYear, rep.Semester, rep.PlanCode = year, semester, plan
		}

		rows(table, func(text string, cells []string) {
			if len(cells) < 6 {
				reject(text, "expected 6 cells")
				return
			}
			if year == "" {
				reject(text, "table has no academic year")
				return
			}
			nums, err := atois(cells[2], cells[3], cells[4], cells[5])
			if err != nil {
				reject(text, err.Error())
				return
			}
			rep.Records = append(rep.Records, models.SubjectYearRecord{
				SubjectCode:  cells[0],
				SubjectName:  cells[1],
				PlanCode:     plan,
				Credits:      nums[0],
				AcademicYear: year,
				Semester:     semester,
				Enrolled:     nums[1],
				Participated: nums[2],
				Passed:       nums[3],
			})
		})
	})

	doc.Find("table.profile").Each(func(_ int, table *goquery.Selection) {
		year, semester := tableContext(table)
		if rep.AcademicYear == "" {
			rep.AcademicYear, rep.Semester = year, semester
		}
		rows(table, func(text string, cells []string) {
			if len(cells) < 5 {
				reject(text, "expected 5 cells")
				return
			}
			if year == "" {
				reject(text, "table has no academic year")
				return
			}
			profile, err := profileRow(cells[0], year, semester, cells[2], cells[3], cells[4])
			if err != nil {
				reject(text, err.Error())
				return
			}
			rep.Profiles = append(rep.Profiles, profile)
		})
	})

	doc.Find("table.history").Each(func(_ int, table *goquery.Selection) {
		year, semester := tableContext(table)
		if rep.AcademicYear == "" {
			rep.AcademicYear, rep.Semester = year, semester
		}
		metric := attr(table, "metric", "")
		if !analysis.ValidMetric(metric) {
			var ok bool
			if metric, ok = analysis.HistoryMetric(metric); !ok {
				return
			}
		}
		var years []string
		table.Find("th").Each(func(_ int, th *goquery.Selection) {
			if m := tableYear.FindStringSubmatch(strings.TrimSpace(th.Text())); m != nil {
				years = append(years, NormalizeYear(m[1], m[2]))
			}
		})

		rows(table, func(text string, cells []string) {
			if year == "" {
				reject(text, "table has no academic year")
				return
			}
			if len(cells) < 2 {
				reject(text, "expected subject code and name")
				return
			}
			rates, err := historyRow(cells[0], strings.Join(cells[1:], " "), years, metric, semester, year)
			if err != nil {
				reject(text, err.Error())
				return
			}
			rep.History = append(rep.History, rates...)
		})
	})

	if rep.AcademicYear == "" && len(rep.Records) == 0 {
		return nil, ErrNoHeader
	}
	return rep, nil
}

// profileRow builds a student profile. Both subsets must fit in the total.
func profileRow(code, year, semester, total, firstTime, partial string) (models.StudentProfile, error) {
	nums, err := atois(total, firstTime, partial)
	if err != nil {
		return models.StudentProfile{}, err
	}
	if nums[1] > nums[0] || nums[2] > nums[0] {
		return models.StudentProfile{}, fmt.Errorf("profile subset exceeds %d enrolled", nums[0])
	}
	return models.StudentProfile{
		SubjectCode:       code,
		AcademicYear:      year,
		Semester:          semester,
		TotalEnrolled:     nums[0],
		FirstTime:         nums[1],
		PartialDedication: nums[2],
	}, nil
}

// historyRow reads the trailing rate columns of a row, one per year. A "-"
// cell means the subject was not taught that year.
func historyRow(code, rest string, years []string, metric, semester, reportYear string) ([]models.HistoricalRate, error) {
	if len(years) == 0 {
		return nil, errors.New("rate row before year columns")
	}
	fields := strings.Fields(rest)
	n := 0
	for n < len(fields) && rateCell.MatchString(fields[len(fields)-1-n]) {
		n++
	}
	if n < len(years) {
		return nil, fmt.Errorf("expected %d rates", len(years))
	}

	var out []models.HistoricalRate
	for i, cell := range fields[len(fields)-len(years):] {
		if cell == "-" {
			continue
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSuffix(cell, "%"), ",", "."), 64)
		if err != nil {
			return nil, fmt.Errorf("not a rate: %q", cell)
		}
		if v < 0 || v > 100 {
			return nil, fmt.Errorf("rate %v outside 0-100", v)
		}
		out = append(out, models.HistoricalRate{
			SubjectCode:  code,
			AcademicYear: years[i],
			Semester:     semester,
			Metric:       metric,
			Value:        v,
			ReportYear:   reportYear,
		})
	}
	return out, nil
}

func isoDate(year, month, day string) string {
	m, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	return fmt.Sprintf("%s-%02d-%02d", year, m, d)
}

func atois(values ...string) ([]int, error) {
	out := make([]int, len(values))
	for i, v := range values {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("not a count: %q", v)
		}
		out[i] = n
	}
	return out, nil
}
