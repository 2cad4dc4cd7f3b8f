package gateway

import (
	"encoding/base64"

	"resume-renderer/internal/render"
)

// Limits bounds what a caller-facing payload may carry.
type Limits struct {
	// MaxInlineBytes is the largest artifact returned as base64; 0 elides all.
	MaxInlineBytes int64
	// MaxLogChars caps stdout and stderr.
	MaxLogChars int
}

// Payload is the caller-facing view of a render result. Encoded artifacts
// larger than the limit are replaced by PDFB64Elided.
type Payload struct {
	YAMLPath     string `json:"yaml_path,omitempty"`
	PDFPath      string `json:"pdf_path,omitempty"`
	PDFB64       string `json:"pdf_b64,omitempty"`
	PDFB64Elided bool   `json:"pdf_b64_elided,omitempty"`
	OutputFolder string `json:"output_folder,omitempty"`
	Filename     string `json:"filename"`
	Stdout       string `json:"stdout"`
	Stderr       string `json:"stderr"`
	ReturnCode   int    `json:"returncode"`
	URL          string `json:"url,omitempty"`
}

// Sanitize builds the payload for res under lim.
func Sanitize(res render.Result, lim Limits) Payload {
	p := Payload{
		YAMLPath:     res.DocumentPath,
		PDFPath:      res.ArtifactPath,
		OutputFolder: res.OutputFolder,
		Filename:     res.ExpectedFilename,
		Stdout:       render.Truncate(res.Stdout, lim.MaxLogChars),
		Stderr:       render.Truncate(res.Stderr, lim.MaxLogChars),
		ReturnCode:   res.ExitCode,
		URL:          res.RemoteURL,
	}
	if n := int64(len(res.ArtifactInline)); n > 0 {
		if n <= lim.MaxInlineBytes {
			p.PDFB64 = base64.StdEncoding.EncodeToString(res.ArtifactInline)
		} else {
			p.PDFB64Elided = true
		}
	}
	return p
}
