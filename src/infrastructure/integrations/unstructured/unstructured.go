package unstructured

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

// Service calls an unstructured-API instance to pull plain text out of
// binary document formats. It satisfies the extract.Extractor contract for
// PDF and office files.
type Service struct {
	baseURL    string
	httpClient *http.Client
}

type Element struct {
	Type      string   `json:"type"`
	Text      string   `json:"text"`
	ElementID string   `json:"element_id"`
	Metadata  Metadata `json:"metadata"`
}

type Metadata struct {
	Filename   string `json:"filename,omitempty"`
	Filetype   string `json:"filetype,omitempty"`
	PageNumber int    `json:"page_number,omitempty"`
}

func NewService(baseURL string, c *http.Client) *Service {
	if c == nil {
		c = &http.Client{}
	}
	return &Service{
		baseURL:    baseURL,
		httpClient: c,
	}
}

func (s *Service) Extensions() []string {
	return []string{".pdf", ".docx", ".doc", ".xlsx", ".xls", ".pptx", ".ppt"}
}

// Extract sends the file to the extraction API and concatenates the text of
// the returned elements.
func (s *Service) Extract(ctx context.Context, filename string, content []byte) (string, error) {
	elements, err := s.partition(ctx, filename, content)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, element := range elements {
		if element.Text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(element.Text)
	}
	return sb.String(), nil
}

func (s *Service) partition(ctx context.Context, filename string, content []byte) ([]Element, error) {
	var requestBody bytes.Buffer
	multipartWriter := multipart.NewWriter(&requestBody)

	fileWriter, err := multipartWriter.CreateFormFile("files", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %v", err)
	}
	if _, err = io.Copy(fileWriter, bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to write file content: %v", err)
	}

	if err := multipartWriter.WriteField("output_format", "application/json"); err != nil {
		return nil, fmt.Errorf("failed to write output format: %v", err)
	}
	multipartWriter.Close()

	httpReq, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/general/v0/general", &requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", multipartWriter.FormDataContentType())

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("extraction service error: %s: %s", resp.Status, string(body))
	}

	var elements []Element
	if err := json.NewDecoder(resp.Body).Decode(&elements); err != nil {
		return nil, fmt.Errorf("failed to parse response: %v", err)
	}

	return elements, nil
}
