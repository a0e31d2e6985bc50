// Package analysis asks a generative model for maintenance guidance on a
// reported device problem.
package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Static answers returned instead of an error.
const (
	MessageMissingKey  = "API Key is missing. Cannot perform AI analysis."
	MessageUnavailable = "Erro ao conectar com o serviço de IA."
	MessageEmpty       = "Não foi possível gerar uma análise."
)

const promptTemplate = `Você é um técnico de TI especialista nível sênior.
Analise o seguinte problema relatado em um computador escolar:
Modelo: %s
Problema: "%s"

Por favor, forneça uma resposta curta e estruturada com:
1. Diagnóstico provável (1 frase).
2. Três passos recomendados para solução.
3. Peças que podem precisar de substituição (se houver).

Mantenha o tom profissional e direto.`

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type Analyzer struct {
	http   *resty.Client
	apiKey string
	model  string
	logger *zap.Logger
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func New(cfg Config, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Analyzer{http: client, apiKey: cfg.APIKey, model: cfg.Model, logger: logger}
}

// Analyze never fails: a missing key or a failed call yields one of the
// static messages.
func (a *Analyzer) Analyze(ctx context.Context, issue, deviceModel string) string {
	if a.apiKey == "" {
		return MessageMissingKey
	}

	req := generateRequest{Contents: []content{{Parts: []part{{Text: fmt.Sprintf(promptTemplate, deviceModel, issue)}}}}}

	var out generateResponse
	resp, err := a.http.R().
		SetContext(ctx).
		SetHeader("x-goog-api-key", a.apiKey).
		SetBody(req).
		SetResult(&out).
		Post(fmt.Sprintf("/v1beta/models/%s:generateContent", a.model))
	if err != nil {
		a.logger.Error("AI analysis call failed", zap.Error(err))
		return MessageUnavailable
	}
	if resp.IsError() {
		a.logger.Error("AI analysis rejected",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("body", string(resp.Body())))
		return MessageUnavailable
	}

	var text strings.Builder
	for _, c := range out.Candidates {
		for _, p := range c.Content.Parts {
			text.WriteString(p.Text)
		}
		if text.Len() > 0 {
			break
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return MessageEmpty
	}
	return text.String()
}
