package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"resume-renderer/internal/logging"
)

const (
	DefaultRemoteTimeout = 120 * time.Second
	// maxWorkerResponse bounds how much of a worker response is read.
	maxWorkerResponse = 64 << 20
)

// WorkerRequest is the body posted to a render worker.
type WorkerRequest struct {
	YAML          string `json:"yaml"`
	IncludePDFB64 bool   `json:"include_pdf_b64"`
	Filename      string `json:"filename,omitempty"`
}

// WorkerResponse is what a render worker returns. Failed renders carry the
// engine's exit code and logs instead of a payload.
type WorkerResponse struct {
	PDFB64     string `json:"pdf_b64,omitempty"`
	Filename   string `json:"filename,omitempty"`
	URL        string `json:"url,omitempty"`
	Stdout     string `json:"stdout,omitempty"`
	Stderr     string `json:"stderr,omitempty"`
	ReturnCode int    `json:"returncode,omitempty"`
	Error      string `json:"error,omitempty"`
}

// RemoteStrategy delegates rendering to a worker over HTTP. Every transport
// or protocol failure becomes a failed Result; it never returns an error.
type RemoteStrategy struct {
	url    string
	token  string
	client *http.Client
	logger *slog.Logger
}

func NewRemoteStrategy(workerURL, token string, timeout time.Duration, logger *slog.Logger) *RemoteStrategy {
	if logger == nil {
		logger = logging.Nop()
	}
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	return &RemoteStrategy{
		url:    WorkerEndpoint(workerURL),
		token:  token,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (s *RemoteStrategy) Name() string { return StrategyRemote }

// WorkerEndpoint appends /render to a worker base URL unless already present.
func WorkerEndpoint(base string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if strings.HasSuffix(base, "/render") {
		return base
	}
	return base + "/render"
}

func (s *RemoteStrategy) Execute(ctx context.Context, job Job) (Result, error) {
	body, err := json.Marshal(WorkerRequest{YAML: job.Document, IncludePDFB64: true, Filename: job.Filename})
	if err != nil {
		return s.fail(job, fmt.Sprintf("Cannot encode render request: %v", err)), nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return s.fail(job, fmt.Sprintf("Invalid render worker URL %q: %v", s.url, err)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("render.worker_unreachable", "url", s.url, "err", err)
		return s.fail(job, fmt.Sprintf("Cannot reach render worker: %v", err)), nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxWorkerResponse))
	if err != nil {
		return s.fail(job, fmt.Sprintf("Reading render worker response failed: %v", err)), nil
	}
	var wr WorkerResponse
	decodeErr := json.Unmarshal(raw, &wr)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res := s.fail(job, fmt.Sprintf("Render worker returned HTTP %d: %s", resp.StatusCode, snippet(raw)))
		if decodeErr == nil {
			res.Stdout = wr.Stdout
			if wr.Stderr != "" {
				res.Stderr = wr.Stderr
			} else if wr.Error != "" {
				res.Stderr = fmt.Sprintf("Render worker returned HTTP %d: %s", resp.StatusCode, wr.Error)
			}
			if wr.ReturnCode != 0 {
				res.ExitCode = wr.ReturnCode
			}
		}
		return res, nil
	}
	if decodeErr != nil {
		return s.fail(job, fmt.Sprintf("Render worker returned an undecodable body: %v", decodeErr)), nil
	}

	res := Result{
		ExpectedFilename: job.Filename,
		Strategy:         StrategyRemote,
		Stdout:           wr.Stdout,
		Stderr:           wr.Stderr,
		RemoteURL:        wr.URL,
	}
	if wr.Filename != "" {
		res.ExpectedFilename = wr.Filename
	}
	if wr.PDFB64 != "" {
		data, err := base64.StdEncoding.DecodeString(wr.PDFB64)
		if err != nil {
			return s.fail(job, fmt.Sprintf("Render worker returned invalid base64: %v", err)), nil
		}
		res.ArtifactInline = data
	}
	if len(res.ArtifactInline) == 0 && res.RemoteURL == "" {
		return s.fail(job, "Worker returned neither url nor pdf_b64"), nil
	}
	return res, nil
}

func (s *RemoteStrategy) fail(job Job, msg string) Result {
	res := Failure(StrategyRemote, msg)
	res.ExpectedFilename = job.Filename
	return res
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 500 {
		s = s[:500] + "..."
	}
	return s
}
