// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package translate turns English titles, abstracts, and paper bodies into
// Traditional Chinese through a language model.
package translate

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/pdiddy/paper-digest/internal/llm"
	"github.com/pdiddy/paper-digest/pkg/types"
)

// systemPrompt keeps formatting, names, placeholders, and math intact.
const systemPrompt = `你是一位專業的學術論文翻譯專家，專門翻譯人工智慧和機器學習領域的論文。
翻譯規則：
1. 翻譯成繁體中文（台灣用語）
2. 專有名詞、模型名稱、縮寫保留英文（如 Transformer、RLHF、LoRA、ResNet）
3. 保持學術文章的嚴謹語氣，不省略任何內容
4. 保留所有 Markdown 格式符號（#、**、*、|、-）
5. 表格的 Markdown 格式（| col | col |）完整保留，只翻譯文字內容
6. 方括號標記如 [FIGURE:xxx]、[FIGURE_CAPTION] 保留原樣不翻譯
7. LaTeX 數學式（$...$ 或 $$...$$）保留原樣
8. 不要自行新增任何方括號標記，只翻譯文字內容`

var (
	abstractTmpl = template.Must(template.New("abstract").Parse("請翻譯以下論文摘要：\n\n{{.Text}}"))
	titleTmpl    = template.Must(template.New("title").Parse("請將以下論文標題翻譯成繁體中文（保留英文縮寫和專有名詞），只回覆翻譯結果：\n\n{{.Text}}"))
	chunkTmpl    = template.Must(template.New("chunk").Parse("請翻譯以下論文段落（保留所有 Markdown 格式）：\n\n{{.Text}}"))
)

const (
	defaultMaxTokens  = 8192
	abstractMaxTokens = 2048
	titleMaxTokens    = 256
	defaultMaxRetries = 3
)

// Translator sends text to the backend with retries.
type Translator struct {
	backend    llm.Completer
	chunkSize  int
	maxTokens  int
	maxRetries int
	logger     *slog.Logger
}

// New returns a Translator. A nil logger uses the default.
func New(backend llm.Completer, cfg types.TranslateConfig, logger *slog.Logger) *Translator {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Translator{
		backend:    backend,
		chunkSize:  cfg.ChunkSize,
		maxTokens:  cfg.MaxTokens,
		maxRetries: cfg.MaxRetries,
		logger:     logger,
	}
	if t.chunkSize <= 0 {
		t.chunkSize = DefaultChunkSize
	}
	if t.maxTokens <= 0 {
		t.maxTokens = defaultMaxTokens
	}
	if t.maxRetries <= 0 {
		t.maxRetries = defaultMaxRetries
	}
	return t
}

// MarkdownResult is a translated body and how many chunks fell back to the source.
type MarkdownResult struct {
	Text   string
	Chunks int
	Failed int
}

// Markdown translates md chunk by chunk. A chunk whose translation fails
// keeps its source text. When every chunk fails the untranslated text is
// returned together with the last error.
func (t *Translator) Markdown(ctx context.Context, md string) (MarkdownResult, error) {
	chunks := Chunk(md, t.chunkSize)
	res := MarkdownResult{Chunks: len(chunks)}
	if len(chunks) == 0 {
		return res, nil
	}

	out := make([]string, len(chunks))
	var lastErr error
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		t.logger.Debug("translating chunk", "chunk", i+1, "of", len(chunks), "chars", len([]rune(chunk)))

		text, err := t.call(ctx, chunkTmpl, chunk, systemPrompt, t.maxTokens)
		if err != nil {
			t.logger.Warn("chunk translation failed, keeping source", "chunk", i+1, "err", err)
			out[i] = chunk
			res.Failed++
			lastErr = err
			continue
		}
		out[i] = text
	}

	res.Text = strings.Join(out, "\n\n")
	if res.Failed == res.Chunks {
		return res, fmt.Errorf("all %d chunks failed: %w", res.Chunks, lastErr)
	}
	return res, nil
}

// Abstract translates a paper abstract.
func (t *Translator) Abstract(ctx context.Context, abstract string) (string, error) {
	if strings.TrimSpace(abstract) == "" {
		return "", nil
	}
	return t.call(ctx, abstractTmpl, abstract, systemPrompt, abstractMaxTokens)
}

// Title translates a paper title.
func (t *Translator) Title(ctx context.Context, title string) (string, error) {
	if strings.TrimSpace(title) == "" {
		return "", nil
	}
	return t.call(ctx, titleTmpl, title, "", titleMaxTokens)
}

func (t *Translator) call(ctx context.Context, tmpl *template.Template, text, system string, maxTokens int) (string, error) {
	prompt, err := render(tmpl, text)
	if err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}
	return llm.CompleteWithRetry(ctx, t.backend, llm.Request{
		System:    system,
		Prompt:    prompt,
		MaxTokens: maxTokens,
	}, t.maxRetries)
}

func render(tmpl *template.Template, text string) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, struct{ Text string }{Text: text}); err != nil {
		return "", err
	}
	return buf.String(), nil
}
