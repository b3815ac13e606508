package judge

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Config holds the connection settings for the external judge service
// (a Judge0 CE compatible instance).
// URL is the base URL of the judge server (e.g. "http://judge0-server:2358").
// AuthToken is optional; sent as X-Auth-Token when the instance requires it.
type Config struct {
	URL       string        `yaml:"url"`
	AuthToken string        `yaml:"authToken"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Client calls the judge REST API to enqueue code execution jobs.
// Results come back asynchronously through the callback URL carried on
// each job; the client never waits for execution.
type Client struct {
	url       string
	authToken string
	client    *http.Client
}

// Job describes one execution request for the judge.
// Source, Stdin and ExpectedOutput are raw; the client base64-encodes them
// on the wire. URL fields, when set, let the judge fetch payloads itself.
type Job struct {
	SourceCode        string
	LanguageID        int
	Stdin             string
	StdinURL          string
	ExpectedOutputURL string
	CallbackURL       string
}

// Token identifies an accepted job on the judge side.
type Token struct {
	Token string `json:"token"`
}

// NewClient constructs a judge client from the given config.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:       strings.TrimRight(cfg.URL, "/"),
		authToken: cfg.AuthToken,
		client:    &http.Client{Timeout: timeout},
	}
}

// SubmitBatch enqueues a batch of jobs and returns one token per job,
// positionally aligned. The judge reports each result by PUTting to the
// job's callback URL.
func (c *Client) SubmitBatch(ctx context.Context, jobs []Job) ([]Token, error) {
	if len(jobs) == 0 {
		return nil, fmt.Errorf("jobs are required")
	}

	submissions := make([]map[string]interface{}, 0, len(jobs))
	for _, job := range jobs {
		submissions = append(submissions, encodeJob(job))
	}
	bodyJSON, err := json.Marshal(map[string]interface{}{"submissions": submissions})
	if err != nil {
		return nil, fmt.Errorf("marshal batch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.url+"/submissions/batch?base64_encoded=true", bytes.NewReader(bodyJSON))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("X-Auth-Token", c.authToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit batch to judge: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("judge returned HTTP %d", resp.StatusCode)
	}

	var tokens []Token
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return nil, fmt.Errorf("decode judge response: %w", err)
	}
	if len(tokens) != len(jobs) {
		return nil, fmt.Errorf("judge returned %d tokens for %d jobs", len(tokens), len(jobs))
	}
	return tokens, nil
}

// Submit enqueues a single job.
func (c *Client) Submit(ctx context.Context, job Job) (Token, error) {
	tokens, err := c.SubmitBatch(ctx, []Job{job})
	if err != nil {
		return Token{}, err
	}
	return tokens[0], nil
}

func encodeJob(job Job) map[string]interface{} {
	body := map[string]interface{}{
		"source_code": base64.StdEncoding.EncodeToString([]byte(job.SourceCode)),
		"language_id": job.LanguageID,
	}
	if job.Stdin != "" {
		body["stdin"] = base64.StdEncoding.EncodeToString([]byte(job.Stdin))
	}
	if job.StdinURL != "" {
		body["stdin_url"] = job.StdinURL
	}
	if job.ExpectedOutputURL != "" {
		body["expected_output_url"] = job.ExpectedOutputURL
	}
	if job.CallbackURL != "" {
		body["callback_url"] = job.CallbackURL
	}
	return body
}
