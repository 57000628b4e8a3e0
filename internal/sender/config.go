package sender

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/raysh454/paipan/internal/model"
	"github.com/raysh454/paipan/internal/textenc"
)

const (
	// DefaultTarget is the BaZi form endpoint the fixture posts to.
	DefaultTarget = "https://paipan.china95.net/BaZi/BaZi.asp"

	// DefaultProxy is where an intercepting proxy such as mitmproxy listens.
	DefaultProxy = "http://127.0.0.1:8080"

	// DefaultUserAgent matches what python-requests sends, so captures line
	// up with earlier recordings.
	DefaultUserAgent = "python-requests/2.31.0"
)

const (
	StartNotice = "正在通过代理发送请求..."
	DoneNotice  = "请求完成！请在 mitmweb 界面查看。"
)

// Config is everything one send needs. Treat it as immutable once built;
// Send works on its own copies of the maps.
type Config struct {
	Target  string
	Payload model.Payload
	Headers model.Headers
	Proxy   model.ProxyConfig

	// SkipTLSVerification trusts whatever certificate the far end presents.
	// The fixture sets it because the proxy re-signs traffic with its own CA.
	SkipTLSVerification bool

	// Encoder converts text fields to wire bytes. Nil means GB2312.
	Encoder textenc.Encoder
}

// DefaultPayload is the fixed BaZi form submission.
func DefaultPayload() model.Payload {
	return model.NewPayload(
		model.TextField("txtName", "某人"),
		model.IntField("zty", 0),
		model.TextField("pid", "山东"),
		model.TextField("cid", "济南"),
		model.IntField("data_type", 0),
		model.IntField("cboYear", 2005),
		model.IntField("cboMonth", 5),
		model.IntField("cboDay", 23),
		model.IntField("cboHour", 9),
		model.IntField("cboMinute", 0),
		model.IntField("rdoSex", 1),
		model.TextField("submit", " 排盘 "),
	)
}

// DefaultConfig returns the fixture: one BaZi POST through a local
// intercepting proxy with verification off.
func DefaultConfig() Config {
	return Config{
		Target:              DefaultTarget,
		Payload:             DefaultPayload(),
		Headers:             model.Headers{"User-Agent": DefaultUserAgent},
		Proxy:               model.LocalProxy(DefaultProxy),
		SkipTLSVerification: true,
		Encoder:             textenc.GB2312,
	}
}

// Validate checks the target and proxy map.
func (c Config) Validate() error {
	if c.Target == "" {
		return errors.New("target is required")
	}
	u, err := url.Parse(c.Target)
	if err != nil {
		return fmt.Errorf("parse target: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("target scheme must be http or https, got %q", u.Scheme)
	}
	if err := c.Proxy.Validate(); err != nil {
		return err
	}
	return nil
}

func (c Config) encoder() textenc.Encoder {
	if c.Encoder == nil {
		return textenc.GB2312
	}
	return c.Encoder
}
