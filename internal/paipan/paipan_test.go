package paipan_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/raysh454/paipan/internal/paipan"
	"github.com/raysh454/paipan/internal/testutil"
	"github.com/raysh454/paipan/internal/textenc"
	"github.com/raysh454/paipan/internal/webclient"
)

const baziPage = `<html><head><title>八字排盘</title></head><body>
<div>命主姓名：某人，出生地：山东 济南。<br>
出生公历：2005年5月23日 9时0分(北京时间)<br/>
出生农历：乙酉年 四月 十六日 巳时。<br>
乾造&nbsp;乙&nbsp;辛&nbsp;丙&nbsp;癸（伤官）<br>
酉 巳 午 巳<br>
子 丑 寅 卯<br>
</div><div>页脚</div></body></html>`

const liuyaoPage = `<html><body><div>
占问事宜：求财<br>
公历：2005年5月23日9时0分<br>
农历：乙酉年四月十六日巳时<br>
神煞：驿马—亥 桃花—午<br>
干支：乙酉 辛巳 丙午 癸巳<br>
(卦身：未)<br>
主变卦 天火同人(离宫) 之 乾为天(乾宫) [空亡:寅卯]<br>
青龙 妻财丙子水 ▅▅▅▅▅ 子孙壬戌土 应 ▅▅▅▅▅ 子孙壬戌土<br>
玄武 ▅▅▅▅▅ 妻财壬申金 ▅▅▅▅▅ 妻财壬申金<br>
白虎 ▅▅▅▅▅ 兄弟己亥水 世 ○→ ▅▅▅▅▅ 官鬼壬午火<br>
</div></body></html>`

func gb(t *testing.T, s string) []byte {
	t.Helper()
	b, err := textenc.GB2312(s)
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return b
}

func TestParseBaZi(t *testing.T) {
	t.Parallel()
	chart, err := paipan.ParseBaZi(baziPage)
	if err != nil {
		t.Fatalf("ParseBaZi: %v", err)
	}

	if chart.Name != "某人" || chart.BirthPlace != "山东 济南" {
		t.Errorf("name/place = %q/%q", chart.Name, chart.BirthPlace)
	}
	if chart.Solar != "2005年5月23日 9时0分" {
		t.Errorf("solar = %q", chart.Solar)
	}
	if chart.Lunar != "乙酉年 四月 十六日 巳时" {
		t.Errorf("lunar = %q", chart.Lunar)
	}
	if chart.Pillars == nil {
		t.Fatal("pillars missing")
	}
	want := paipan.Pillars{
		Kind: "乾造", YearStem: "乙", MonthStem: "辛", DayStem: "丙", HourStem: "癸",
		YearBranch: "酉", MonthBranch: "巳", DayBranch: "午", HourBranch: "巳",
	}
	if *chart.Pillars != want {
		t.Errorf("pillars = %+v, want %+v", *chart.Pillars, want)
	}
}

func TestParseLiuYao(t *testing.T) {
	t.Parallel()
	chart, err := paipan.ParseLiuYao(liuyaoPage)
	if err != nil {
		t.Fatalf("ParseLiuYao: %v", err)
	}

	info := paipan.LiuYaoInfo{
		Event: "求财", Solar: "2005年5月23日9时0分", Lunar: "乙酉年四月十六日巳时",
		Spirits: "驿马—亥 桃花—午", GanZhi: "乙酉 辛巳 丙午 癸巳", GuaShen: "未",
	}
	if chart.Info != info {
		t.Errorf("info = %+v", chart.Info)
	}

	hex := paipan.Hexagrams{Main: "天火同人", MainPalace: "离宫", Changed: "乾为天", ChangedPalace: "乾宫", Void: "寅卯"}
	if chart.Hexagrams != hex {
		t.Errorf("hexagrams = %+v", chart.Hexagrams)
	}

	want := []paipan.Yao{
		{Beast: "青龙", Hidden: "妻财丙子水", Main: "▅▅▅▅▅ 子孙壬戌土", Changed: "▅▅▅▅▅ 子孙壬戌土", Marker: "应"},
		{Beast: "玄武", Main: "▅▅▅▅▅ 妻财壬申金", Changed: "▅▅▅▅▅ 妻财壬申金"},
		{Beast: "白虎", Main: "▅▅▅▅▅ 兄弟己亥水 ○→", Changed: "▅▅▅▅▅ 官鬼壬午火", Marker: "世"},
	}
	if len(chart.Lines) != len(want) {
		t.Fatalf("expected %d yao lines, got %d: %+v", len(want), len(chart.Lines), chart.Lines)
	}
	for i := range want {
		if chart.Lines[i] != want[i] {
			t.Errorf("yao %d = %+v, want %+v", i, chart.Lines[i], want[i])
		}
	}
}

func TestParse_NoDiv(t *testing.T) {
	t.Parallel()
	page := "<html><body><p>nothing</p></body></html>"
	if _, err := paipan.ParseBaZi(page); !errors.Is(err, paipan.ErrNoContent) {
		t.Errorf("bazi: expected ErrNoContent, got %v", err)
	}
	if _, err := paipan.ParseLiuYao(page); !errors.Is(err, paipan.ErrNoContent) {
		t.Errorf("liuyao: expected ErrNoContent, got %v", err)
	}
}

func TestQueryValidate(t *testing.T) {
	t.Parallel()
	good := paipan.BaZiQuery{Year: 2005, Month: 5, Day: 23, Hour: 0, Gender: paipan.Male, Province: "山东", City: "济南"}
	if err := good.Validate(); err != nil {
		t.Fatalf("midnight should be valid: %v", err)
	}

	cases := map[string]paipan.BaZiQuery{
		"month":  {Year: 2005, Month: 13, Day: 1, Province: "a", City: "b"},
		"hour":   {Year: 2005, Month: 1, Day: 1, Hour: 24, Province: "a", City: "b"},
		"gender": {Year: 2005, Month: 1, Day: 1, Gender: 2, Province: "a", City: "b"},
		"city":   {Year: 2005, Month: 1, Day: 1, Province: "a"},
	}
	for name, q := range cases {
		if err := q.Validate(); !errors.Is(err, paipan.ErrInvalidQuery) {
			t.Errorf("%s: expected ErrInvalidQuery, got %v", name, err)
		}
	}

	if err := (paipan.LiuYaoQuery{Year: 2005, Month: 1, Day: 1}).Validate(); !errors.Is(err, paipan.ErrInvalidQuery) {
		t.Errorf("liuyao without event: got %v", err)
	}
}

func TestLiuYaoQuery_PayloadOrder(t *testing.T) {
	t.Parallel()
	p := paipan.LiuYaoQuery{Event: "求财", Year: 2005, Month: 5, Day: 23, Hour: 9}.Payload()
	names := []string{"txtEvent", "cboYear", "cboMonth", "cboDay", "cboHour", "cboMinute",
		"rdoQiGua", "txtName", "rdoSex", "rdoLiFa", "cboPanShi", "Submit"}
	fields := p.Fields()
	if len(fields) != len(names) {
		t.Fatalf("expected %d fields, got %d", len(names), len(fields))
	}
	for i, n := range names {
		if fields[i].Name != n {
			t.Errorf("field %d = %s, want %s", i, fields[i].Name, n)
		}
	}
}

func TestClient_BaZiOverHTTP(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		form   url.Values
		accept string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != paipan.BaZiPath || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		form, _ = url.ParseQuery(string(raw))
		accept = r.Header.Get("Accept")
		mu.Unlock()
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write(gb(t, baziPage))
	}))
	defer srv.Close()

	wc, err := webclient.NewNetHTTPClient(webclient.Config{}, nil, nil)
	if err != nil {
		t.Fatalf("NewNetHTTPClient: %v", err)
	}
	defer wc.Close()

	c, err := paipan.NewClient(wc, paipan.Config{BaseURL: srv.URL + "/"}, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	chart, err := c.BaZi(context.Background(), paipan.BaZiQuery{
		Year: 2005, Month: 5, Day: 23, Hour: 9, Gender: paipan.Male, Province: "山东", City: "济南",
	})
	if err != nil {
		t.Fatalf("BaZi: %v", err)
	}
	if chart.Name != "某人" || chart.Pillars == nil || chart.Pillars.HourBranch != "巳" {
		t.Errorf("unexpected chart %+v", chart)
	}

	mu.Lock()
	defer mu.Unlock()
	if form.Get("pid") != string(gb(t, "山东")) {
		t.Errorf("pid not sent as GB2312: % X", form.Get("pid"))
	}
	if form.Get("cboYear") != "2005" || form.Get("rdoSex") != "1" {
		t.Errorf("numeric fields = %v", form)
	}
	if accept != "*/*" {
		t.Errorf("accept = %q", accept)
	}
}

func TestClient_LiuYaoDecodesDeclaredCharset(t *testing.T) {
	t.Parallel()
	wc := &testutil.DummyWebClient{Responses: map[string]testutil.DummyResponse{
		"http://chart.test" + paipan.LiuYaoPath: {
			Body:    gb(t, liuyaoPage),
			Headers: http.Header{"Content-Type": []string{"text/html; charset=gb2312"}},
		},
	}}
	c, err := paipan.NewClient(wc, paipan.Config{BaseURL: "http://chart.test", Charset: "utf-8"}, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	chart, err := c.LiuYao(context.Background(), paipan.LiuYaoQuery{Event: "求财", Year: 2005, Month: 5, Day: 23, Hour: 9})
	if err != nil {
		t.Fatalf("LiuYao: %v", err)
	}
	if chart.Hexagrams.Main != "天火同人" || len(chart.Lines) != 3 {
		t.Errorf("unexpected chart %+v", chart)
	}

	sent := wc.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected one request, got %d", len(sent))
	}
	form, _ := url.ParseQuery(string(sent[0].Body))
	if form.Get("txtEvent") != "求财" {
		t.Errorf("utf-8 charset should send utf-8 text, got % X", form.Get("txtEvent"))
	}
}

func TestClient_UpstreamStatus(t *testing.T) {
	t.Parallel()
	wc := &testutil.DummyWebClient{Responses: map[string]testutil.DummyResponse{
		"http://chart.test" + paipan.BaZiPath: {StatusCode: http.StatusServiceUnavailable},
	}}
	c, err := paipan.NewClient(wc, paipan.Config{BaseURL: "http://chart.test"}, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = c.BaZi(context.Background(), paipan.BaZiQuery{Year: 2005, Month: 5, Day: 23, Hour: 9, Gender: 1, Province: "a", City: "b"})
	if !errors.Is(err, paipan.ErrUpstreamStatus) {
		t.Fatalf("expected ErrUpstreamStatus, got %v", err)
	}
}

func TestClient_TransportFailure(t *testing.T) {
	t.Parallel()
	wc := &testutil.DummyWebClient{FailURLs: map[string]bool{"http://chart.test" + paipan.BaZiPath: true}}
	c, err := paipan.NewClient(wc, paipan.Config{BaseURL: "http://chart.test"}, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = c.BaZi(context.Background(), paipan.BaZiQuery{Year: 2005, Month: 5, Day: 23, Hour: 9, Gender: 1, Province: "a", City: "b"})
	if err == nil || errors.Is(err, paipan.ErrUpstreamStatus) {
		t.Fatalf("expected a transport error, got %v", err)
	}
}

func TestNewClient_UnknownCharset(t *testing.T) {
	t.Parallel()
	_, err := paipan.NewClient(&testutil.DummyWebClient{}, paipan.Config{Charset: "klingon"}, nil)
	if !errors.Is(err, textenc.ErrUnknownEncoding) {
		t.Fatalf("expected ErrUnknownEncoding, got %v", err)
	}
}
