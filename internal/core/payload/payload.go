/**
 * 外传数据载荷
 * @author: sun977
 * @date: 2026.02.10
 * @description: 从数据目录读取测试文件，提供整体读取、分块迭代和按行迭代。
 *               文件在第一次访问时打开，并在检测项的整个生命周期内保持打开。
 */

package payload

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cyllective/egress0r/internal/core/model"
)

// ErrUnavailable 载荷文件不存在或不可读
var ErrUnavailable = errors.New("payload unavailable")

// ReadMode 读取模式
type ReadMode int

const (
	ModeBinary ReadMode = iota // 按字节处理
	ModeText                   // 按字符 (rune) 处理
)

func (m ReadMode) String() string {
	if m == ModeText {
		return "text"
	}
	return "binary"
}

// ParseReadMode 解析配置中的读取模式
// 兼容早期配置写法 "rb" / "r"
func ParseReadMode(s string) (ReadMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "rb", "b", "binary":
		return ModeBinary, nil
	case "r", "t", "text":
		return ModeText, nil
	default:
		return ModeBinary, &model.ConfigError{
			Component: "Payload",
			Field:     "read_mode",
			Value:     s,
			Allowed:   []string{"binary", "text"},
		}
	}
}

// Option 载荷构建选项
type Option func(*Payload)

// WithReadMode 设置读取模式
func WithReadMode(mode ReadMode) Option {
	return func(p *Payload) {
		p.Mode = mode
	}
}

// WithChunking 设置默认分块大小与最大块数 (0 表示不设置)
func WithChunking(chunkSize, maxChunks int) Option {
	return func(p *Payload) {
		p.ChunkSize = chunkSize
		p.MaxChunks = maxChunks
	}
}

// Payload 外传内容
// 同一个 Payload 只属于一个检测项，不支持并发访问
type Payload struct {
	Filename  string
	Path      string
	Mode      ReadMode
	ChunkSize int
	MaxChunks int

	fh     *os.File
	reader *bufio.Reader
	data   []byte
	loaded bool
}

// New 创建载荷，文件延迟到第一次访问时打开
func New(dataDir, filename string, opts ...Option) (*Payload, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, &model.ConfigError{Component: "Payload", Field: "filename", Value: filename, Reason: "must not be empty"}
	}

	p := &Payload{
		Filename: filename,
		Path:     filepath.Join(dataDir, filename),
		Mode:     ModeBinary,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.ChunkSize < 0 {
		return nil, &model.ConfigError{Component: "Payload", Field: "chunk_size", Value: strconv.Itoa(p.ChunkSize), Reason: "must be >= 1"}
	}
	if p.MaxChunks < 0 {
		return nil, &model.ConfigError{Component: "Payload", Field: "max_chunks", Value: strconv.Itoa(p.MaxChunks), Reason: "must be >= 1"}
	}
	return p, nil
}

// handle 懒加载文件句柄
func (p *Payload) handle() (*bufio.Reader, error) {
	if p.reader != nil {
		return p.reader, nil
	}
	fh, err := os.Open(p.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	p.fh = fh
	p.reader = bufio.NewReader(fh)
	return p.reader, nil
}

// Rewind 将读取位置重置到文件开头
func (p *Payload) Rewind() error {
	r, err := p.handle()
	if err != nil {
		return err
	}
	if _, err := p.fh.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	r.Reset(p.fh)
	return nil
}

// Data 返回完整内容，只读取一次并缓存
func (p *Payload) Data() ([]byte, error) {
	if p.loaded {
		return p.data, nil
	}
	if err := p.Rewind(); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(p.reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := p.Rewind(); err != nil {
		return nil, err
	}
	p.data = data
	p.loaded = true
	return p.data, nil
}

// Text 以文本形式返回完整内容，非法 UTF-8 序列替换为 U+FFFD
func (p *Payload) Text() (string, error) {
	data, err := p.Data()
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(data), "�"), nil
}

// DataLength 完整内容的字节数
func (p *Payload) DataLength() (int, error) {
	data, err := p.Data()
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

// ChunksTotalLength MaxChunks * ChunkSize，两者都设置时才有意义，否则为 0
func (p *Payload) ChunksTotalLength() int {
	if p.ChunkSize <= 0 || p.MaxChunks <= 0 {
		return 0
	}
	return p.ChunkSize * p.MaxChunks
}

// Chunks 返回分块迭代器
//
// chunkSize/maxChunks 都为 0 时使用载荷自身的配置；最多产生 maxChunks 个块，
// 每块最多 chunkSize 个单位 (字节或字符)。
// maxChunks 是上限而不是精确数量：读到文件末尾时提前结束，不产生空块，
// 空块会变成 "<空>.domain" 这样的非法查询名。文件长度不少于 chunkSize*maxChunks 时正好 maxChunks 块。
// 没有 maxChunks 限制时退化为逐个单位迭代 (chunkSize 为 0 则遍历整个文件)。
// 迭代前后都会把读取位置重置到文件开头，因此可以重复迭代。
func (p *Payload) Chunks(chunkSize, maxChunks int) iter.Seq2[[]byte, error] {
	if chunkSize == 0 && maxChunks == 0 && p.ChunkSize > 0 && p.MaxChunks > 0 {
		chunkSize, maxChunks = p.ChunkSize, p.MaxChunks
	}

	return func(yield func([]byte, error) bool) {
		if err := p.Rewind(); err != nil {
			yield(nil, err)
			return
		}
		defer p.Rewind()

		if maxChunks <= 0 {
			block, err := p.readUnits(chunkSize)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, unit := range p.splitUnits(block) {
				if !yield(unit, nil) {
					return
				}
			}
			return
		}

		for i := 0; i < maxChunks; i++ {
			chunk, err := p.readUnits(chunkSize)
			if err != nil {
				yield(nil, err)
				return
			}
			if len(chunk) == 0 {
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

// readUnits 从当前位置读取最多 n 个单位，n <= 0 表示读到末尾
func (p *Payload) readUnits(n int) ([]byte, error) {
	if n <= 0 {
		data, err := io.ReadAll(p.reader)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return data, nil
	}

	if p.Mode == ModeBinary {
		buf := make([]byte, n)
		read, err := io.ReadFull(p.reader, buf)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return buf[:read], nil
	}

	var buf bytes.Buffer
	for i := 0; i < n; i++ {
		r, size, err := p.reader.ReadRune()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune(utf8.RuneError)
			continue
		}
		buf.WriteRune(r)
	}
	return buf.Bytes(), nil
}

// splitUnits 把一段内容拆成单个字节或单个字符
func (p *Payload) splitUnits(block []byte) [][]byte {
	units := make([][]byte, 0, len(block))
	if p.Mode == ModeBinary {
		for i := range block {
			units = append(units, block[i:i+1])
		}
		return units
	}
	for len(block) > 0 {
		_, size := utf8.DecodeRune(block)
		units = append(units, block[:size])
		block = block[size:]
	}
	return units
}

// Lines 返回去掉行尾空白的行，maxLines <= 0 表示全部
func (p *Payload) Lines(maxLines int) ([]string, error) {
	if err := p.Rewind(); err != nil {
		return nil, err
	}
	defer p.Rewind()

	var lines []string
	for maxLines <= 0 || len(lines) < maxLines {
		line, err := p.reader.ReadString('\n')
		if line != "" {
			lines = append(lines, strings.TrimRightFunc(line, unicode.IsSpace))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return lines, nil
}

// Read 从当前位置顺序读取，实现 io.Reader
func (p *Payload) Read(b []byte) (int, error) {
	r, err := p.handle()
	if err != nil {
		return 0, err
	}
	return r.Read(b)
}

// Close 关闭底层文件
func (p *Payload) Close() error {
	if p.fh == nil {
		return nil
	}
	err := p.fh.Close()
	p.fh = nil
	p.reader = nil
	return err
}
