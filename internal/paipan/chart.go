package paipan

// BaZiChart is the parsed four-pillars page. Keys follow the site's own
// labels so API consumers see the terms they already know.
type BaZiChart struct {
	Name       string   `json:"姓名,omitempty"`
	BirthPlace string   `json:"出生地,omitempty"`
	Solar      string   `json:"公历,omitempty"`
	Lunar      string   `json:"农历,omitempty"`
	Pillars    *Pillars `json:"四柱,omitempty"`
}

// Pillars holds the heavenly stems and earthly branches of the year, month,
// day and hour pillars. Kind is 乾造 for male charts and 坤造 for female.
type Pillars struct {
	Kind        string `json:"类型"`
	YearStem    string `json:"年柱天干,omitempty"`
	MonthStem   string `json:"月柱天干,omitempty"`
	DayStem     string `json:"日柱天干,omitempty"`
	HourStem    string `json:"时柱天干,omitempty"`
	YearBranch  string `json:"年柱地支,omitempty"`
	MonthBranch string `json:"月柱地支,omitempty"`
	DayBranch   string `json:"日柱地支,omitempty"`
	HourBranch  string `json:"时柱地支,omitempty"`
}

// LiuYaoChart is the parsed six-lines page.
type LiuYaoChart struct {
	Info      LiuYaoInfo `json:"基本信息"`
	Hexagrams Hexagrams  `json:"卦象"`
	Lines     []Yao      `json:"爻位详情"`
}

type LiuYaoInfo struct {
	Event   string `json:"占问事宜,omitempty"`
	Solar   string `json:"公历,omitempty"`
	Lunar   string `json:"农历,omitempty"`
	Spirits string `json:"神煞,omitempty"`
	GanZhi  string `json:"干支,omitempty"`
	GuaShen string `json:"卦身,omitempty"`
}

type Hexagrams struct {
	Main          string `json:"主卦,omitempty"`
	MainPalace    string `json:"主卦宫位,omitempty"`
	Changed       string `json:"变卦,omitempty"`
	ChangedPalace string `json:"变卦宫位,omitempty"`
	Void          string `json:"空亡,omitempty"`
}

// Yao is one line of the hexagram, top line first as the site prints it.
type Yao struct {
	Beast   string `json:"神兽"`
	Hidden  string `json:"伏神,omitempty"`
	Main    string `json:"主卦爻"`
	Changed string `json:"变卦爻"`
	// Marker is 世, 应 or empty.
	Marker string `json:"标记"`
}
