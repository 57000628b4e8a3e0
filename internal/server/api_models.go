package server

// ErrorResponse is a uniform error payload returned by the API.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Messages returned to API clients. They keep the wording of the original
// chart service so existing front ends keep matching on them.
const (
	msgNotFound          = "路径未找到. 请访问 /api/bazi 或 /api/liuyao"
	msgBaZiMissingParams = "缺少八字排盘必须的参数"
	msgLiuYaoMissing     = "缺少六爻排盘必须的参数: event, year, month, day, hour"
	msgBaZiNoContent     = "解析失败：未找到内容DIV"
	msgLiuYaoNoContent   = "解析失败：未找到核心内容DIV"
	msgUpstreamFailed    = "请求失败: "
	msgUnknownError      = "发生未知错误: "
)

// LookupIDHeader carries the history id of a stored chart lookup.
const LookupIDHeader = "X-Lookup-ID"
