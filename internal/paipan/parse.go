package paipan

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoContent means the page had no <div> to read the chart from. The site
// answers malformed forms with an empty page and a 200.
var ErrNoContent = errors.New("chart content not found")

var (
	earthlyBranches = []string{"子", "丑", "寅", "卯", "辰", "巳", "午", "未", "申", "酉", "戌", "亥"}
	sixBeasts       = []string{"青龙", "玄武", "白虎", "螣蛇", "勾陈", "朱雀"}

	hexagramLine  = regexp.MustCompile(`主变卦\s+(.*?)\((.*?)\)\s+之\s+(.*?)\((.*?)\)\s+\[空亡:(.*?)\]`)
	parenthesized = regexp.MustCompile(`\(([^)]+)\)`)
)

// yaoGlyph marks the drawn line in a yao row; the first one starts the
// main hexagram column and the second starts the changed hexagram column.
const yaoGlyph = "▅"

// contentLines returns the trimmed, non-empty text lines of the page's
// first <div>, with <br> treated as a line break.
func contentLines(html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	div := doc.Find("div").First()
	if div.Length() == 0 {
		return nil, ErrNoContent
	}
	div.Find("br").ReplaceWithHtml("\n")

	text := strings.ReplaceAll(div.Text(), "\u00a0", " ")
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines, nil
}

// ParseBaZi extracts a BaZiChart from a decoded BaZi result page. Lines the
// parser does not recognize are skipped.
func ParseBaZi(html string) (*BaZiChart, error) {
	lines, err := contentLines(html)
	if err != nil {
		return nil, err
	}

	chart := &BaZiChart{}
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "命主姓名"):
			parts := strings.Split(line, "，")
			chart.Name = strings.TrimSpace(strings.Replace(parts[0], "命主姓名：", "", 1))
			if len(parts) > 1 {
				place := strings.Replace(parts[1], "出生地：", "", 1)
				chart.BirthPlace = strings.TrimSpace(strings.Replace(place, "。", "", 1))
			}
		case strings.HasPrefix(line, "出生公历"):
			solar := strings.Replace(line, "出生公历：", "", 1)
			solar, _, _ = strings.Cut(solar, "(北京时间)")
			chart.Solar = strings.TrimSpace(solar)
		case strings.HasPrefix(line, "出生农历"):
			lunar := strings.Replace(line, "出生农历：", "", 1)
			chart.Lunar = strings.TrimSpace(strings.Replace(lunar, "。", "", 1))
		case strings.HasPrefix(line, "乾造"), strings.HasPrefix(line, "坤造"):
			chart.Pillars = parseStems(strings.Fields(line))
		case chart.Pillars != nil && chart.Pillars.YearBranch == "" && hasAnyPrefix(line, earthlyBranches):
			zhi := strings.Fields(line)
			if len(zhi) >= 4 {
				chart.Pillars.YearBranch = zhi[0]
				chart.Pillars.MonthBranch = zhi[1]
				chart.Pillars.DayBranch = zhi[2]
				chart.Pillars.HourBranch = zhi[3]
			}
		}
	}
	return chart, nil
}

func parseStems(gan []string) *Pillars {
	p := &Pillars{Kind: gan[0]}
	at := func(i int) string {
		if i < len(gan) {
			return gan[i]
		}
		return ""
	}
	p.YearStem = at(1)
	p.MonthStem = at(2)
	p.DayStem = at(3)
	// The hour stem is followed by a parenthesized note, e.g. 甲（日元）.
	hour, _, _ := strings.Cut(at(4), "（")
	p.HourStem = strings.TrimSpace(hour)
	return p
}

// ParseLiuYao extracts a LiuYaoChart from a decoded LiuYao result page.
func ParseLiuYao(html string) (*LiuYaoChart, error) {
	lines, err := contentLines(html)
	if err != nil {
		return nil, err
	}

	chart := &LiuYaoChart{Lines: []Yao{}}
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "占问事宜："):
			chart.Info.Event = labelValue(line)
		case strings.HasPrefix(line, "公历："):
			chart.Info.Solar = labelValue(line)
		case strings.HasPrefix(line, "农历："):
			chart.Info.Lunar = labelValue(line)
		case strings.HasPrefix(line, "神煞："):
			chart.Info.Spirits = labelValue(line)
		case strings.HasPrefix(line, "干支："):
			chart.Info.GanZhi = labelValue(line)
		case strings.HasPrefix(line, "(卦身："):
			if m := parenthesized.FindStringSubmatch(line); m != nil {
				chart.Info.GuaShen = strings.TrimPrefix(m[1], "卦身：")
			}
		case strings.HasPrefix(line, "主变卦"):
			if chart.Hexagrams.Main != "" {
				continue
			}
			if m := hexagramLine.FindStringSubmatch(line); m != nil {
				chart.Hexagrams = Hexagrams{
					Main:          m[1],
					MainPalace:    m[2],
					Changed:       m[3],
					ChangedPalace: m[4],
					Void:          m[5],
				}
			}
		case hasAnyPrefix(line, sixBeasts):
			chart.Lines = append(chart.Lines, parseYao(strings.Fields(line)))
		}
	}
	return chart, nil
}

// parseYao splits a row like
//
//	青龙 妻财丙子水 ▅▅ ▅▅ 兄弟己未土 世 ▅▅▅▅▅ 官鬼丁酉金
//
// into beast, optional hidden spirit, main line (minus the 世/应 marker) and
// changed line.
func parseYao(parts []string) Yao {
	yao := Yao{Beast: parts[0]}

	split := -1
	for i := 1; i < len(parts); i++ {
		if strings.Contains(parts[i], yaoGlyph) {
			split = i
			break
		}
	}
	if split > 1 {
		yao.Hidden = strings.Join(parts[1:split], " ")
	}
	if split < 0 {
		split = 1
	}

	rest := parts[split:]
	mainParts, changedParts := rest, []string(nil)
	for i := 1; i < len(rest); i++ {
		if strings.Contains(rest[i], yaoGlyph) {
			mainParts, changedParts = rest[:i], rest[i:]
			break
		}
	}

	kept := make([]string, 0, len(mainParts))
	for _, p := range mainParts {
		switch p {
		case "世", "应":
			if yao.Marker != "应" {
				yao.Marker = p
			}
		default:
			kept = append(kept, p)
		}
	}
	yao.Main = strings.Join(kept, " ")
	yao.Changed = strings.Join(changedParts, " ")
	return yao
}

func labelValue(line string) string {
	parts := strings.Split(line, "：")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
