package delegate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
)

// postHTTP 以 application/json POST body，2xx 响应视为成功。
func (d *Delegator) postHTTP(ctx context.Context, t HTTPTarget, body []byte, timeout time.Duration) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(body))
	if err != nil {
		return nil, newFailure(CodeHTTPFailed, t.Server, ModeHTTP, err, "构建请求失败")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for key, value := range t.Headers {
		req.Header.Set(key, value)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, newFailure(CodeTimeout, t.Server, ModeHTTP, err,
				fmt.Sprintf("请求在 %s 内未完成", timeout))
		}
		return nil, newFailure(CodeHTTPFailed, t.Server, ModeHTTP, err, "请求失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxDetailBytes))
		f := newFailure(CodeHTTPFailed, t.Server, ModeHTTP, nil,
			fmt.Sprintf("返回错误状态 %d", resp.StatusCode)).withStatusCode(resp.StatusCode)
		f.Detail = strings.TrimSpace(string(snippet))
		return nil, f
	}

	reader := io.Reader(resp.Body)
	if d.maxOutputBytes > 0 {
		reader = io.LimitReader(resp.Body, d.maxOutputBytes+1)
	}
	raw, err := io.ReadAll(reader)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, newFailure(CodeTimeout, t.Server, ModeHTTP, err,
				fmt.Sprintf("读取响应在 %s 内未完成", timeout))
		}
		return nil, newFailure(CodeHTTPFailed, t.Server, ModeHTTP, err, "读取响应失败").
			withStatusCode(resp.StatusCode)
	}
	if d.maxOutputBytes > 0 && int64(len(raw)) > d.maxOutputBytes {
		return nil, newFailure(CodeHTTPFailed, t.Server, ModeHTTP, nil,
			fmt.Sprintf("响应超过 %d 字节上限", d.maxOutputBytes)).withStatusCode(resp.StatusCode)
	}

	result := &Result{Server: t.Server, Mode: ModeHTTP, Output: string(raw)}
	decoded, isJSON, err := decodeBody(resp.Header.Get("Content-Type"), raw)
	if err != nil {
		f := newFailure(CodeHTTPFailed, t.Server, ModeHTTP, err, "响应不是合法的 JSON").
			withStatusCode(resp.StatusCode)
		f.Detail = truncate(strings.TrimSpace(string(raw)))
		return nil, f
	}
	if isJSON {
		result.Body = decoded
	}
	return result, nil
}

// decodeBody 只解码 Content-Type 声明为 JSON 的响应体，解析失败时返回错误。
// 其余类型即使内容恰好是 JSON 也按原始文本处理。
func decodeBody(contentType string, raw []byte) (any, bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, false, nil
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || (mediaType != "application/json" && !strings.HasSuffix(mediaType, "+json")) {
		return nil, false, nil
	}
	var decoded any
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		return nil, false, err
	}
	return decoded, true, nil
}
