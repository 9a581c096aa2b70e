package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Remote — драйвер поверх HTTP-сервиса автоматизации браузера.
//
// Протокол:
//
//	POST   /sessions                {"profile_path"}  → 201 {"session_id"}
//	GET    /sessions/{id}/contacts                   → 200 NDJSON {"jid","name"}
//	POST   /sessions/{id}/messages  {"jid","body"}    → 202
//	DELETE /sessions/{id}                            → 204
type Remote struct {
	baseURL string
	client  *http.Client
}

// RemoteConfig — конфигурация Remote.
type RemoteConfig struct {
	// BaseURL — адрес сервиса автоматизации.
	BaseURL string

	// Timeout — таймаут одного HTTP-запроса. Отправка в браузере
	// может занимать минуты, поэтому по умолчанию 3 минуты.
	Timeout time.Duration
}

// NewRemote создаёт HTTP-драйвер.
func NewRemote(cfg RemoteConfig) *Remote {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 3 * time.Minute
	}
	return &Remote{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type openSessionRequest struct {
	ProfilePath string `json:"profile_path"`
}

type openSessionResponse struct {
	SessionID string `json:"session_id"`
}

type sendMessageRequest struct {
	JID  string `json:"jid"`
	Body string `json:"body"`
}

// OpenSession открывает сессию профиля на стороне сервиса.
func (r *Remote) OpenSession(ctx context.Context, profilePath string) (Session, error) {
	var resp openSessionResponse
	err := r.do(ctx, http.MethodPost, "/sessions", openSessionRequest{ProfilePath: profilePath}, http.StatusCreated, &resp)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrSession, profilePath, err)
	}
	if resp.SessionID == "" {
		return nil, fmt.Errorf("%w: %s: missing session_id in response", ErrSession, profilePath)
	}
	return &remoteSession{remote: r, id: resp.SessionID}, nil
}

type remoteSession struct {
	remote *Remote
	id     string
}

func (s *remoteSession) path(suffix string) string {
	return "/sessions/" + url.PathEscape(s.id) + suffix
}

func (s *remoteSession) ListAvailableContacts(ctx context.Context) iter.Seq2[Candidate, error] {
	return func(yield func(Candidate, error) bool) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.remote.baseURL+s.path("/contacts"), nil)
		if err != nil {
			yield(Candidate{}, err)
			return
		}
		req.Header.Set("Accept", "application/x-ndjson")

		resp, err := s.remote.client.Do(req)
		if err != nil {
			yield(Candidate{}, fmt.Errorf("%w: list contacts: %v", ErrSession, err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			yield(Candidate{}, fmt.Errorf("%w: list contacts: unexpected status code: %d body=%q", ErrSession, resp.StatusCode, string(body)))
			return
		}

		dec := json.NewDecoder(resp.Body)
		for {
			var c Candidate
			err := dec.Decode(&c)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Candidate{}, fmt.Errorf("%w: decode contact: %v", ErrSession, err))
				return
			}
			if !yield(c, nil) {
				return
			}
		}
	}
}

func (s *remoteSession) SendMessage(ctx context.Context, jid, body string) error {
	err := s.remote.do(ctx, http.MethodPost, s.path("/messages"), sendMessageRequest{JID: jid, Body: body}, http.StatusAccepted, nil)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSend, jid, err)
	}
	return nil
}

func (s *remoteSession) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.remote.do(ctx, http.MethodDelete, s.path(""), nil, http.StatusNoContent, nil)
}

// do выполняет JSON-запрос и проверяет статус ответа.
func (r *Remote) do(ctx context.Context, method, path string, in any, want int, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != want {
		return fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(data))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode json: %w body=%q", err, string(data))
	}
	return nil
}
