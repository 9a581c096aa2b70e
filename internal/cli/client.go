package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// AccountResponse — аккаунт из API.
type AccountResponse struct {
	ID                  string `json:"account_id"`
	ProfilePath         string `json:"profile_path"`
	Phone               string `json:"phone,omitempty"`
	Enabled             bool   `json:"enabled"`
	Status              string `json:"status"`
	DailyLimit          int    `json:"daily_limit"`
	TodaySent           int    `json:"today_sent"`
	RemainingToday      int    `json:"remaining_today"`
	LastUsedTime        string `json:"last_used_time,omitempty"`
	LastError           string `json:"last_error,omitempty"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	InUse               bool   `json:"in_use"`
	CreatedAt           string `json:"created_at"`
}

// TaskResponse — send task из API.
type TaskResponse struct {
	ID         string `json:"task_id"`
	AccountID  string `json:"account_id"`
	Message    string `json:"message,omitempty"`
	TemplateID string `json:"template_id,omitempty"`
	BulkID     string `json:"bulk_id,omitempty"`
	State      string `json:"state"`
	Finished   bool   `json:"finished"`
	Success    bool   `json:"success"`
	Result     string `json:"result,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Detail     string `json:"detail,omitempty"`
	ContactID  string `json:"contact_id,omitempty"`
	ContactJID string `json:"contact_jid,omitempty"`
	CreatedAt  string `json:"created_at"`
	FinishedAt string `json:"finished_at,omitempty"`
}

// BulkSummary — сводка по task'ам bulk.
type BulkSummary struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Rejected  int `json:"rejected"`
	Aborted   int `json:"aborted"`
}

// BulkResponse — bulk из API.
type BulkResponse struct {
	ID         string       `json:"id"`
	Mode       string       `json:"mode"`
	Message    string       `json:"message,omitempty"`
	TemplateID string       `json:"template_id,omitempty"`
	Status     string       `json:"status"`
	Total      int          `json:"total"`
	Error      string       `json:"error,omitempty"`
	Summary    *BulkSummary `json:"summary,omitempty"`
	TaskIDs    []string     `json:"task_ids,omitempty"`
	CreatedAt  string       `json:"created_at"`
	FinishedAt string       `json:"finished_at,omitempty"`
}

// ContactResponse — контакт из API.
type ContactResponse struct {
	ID              string         `json:"contact_id"`
	Name            string         `json:"name,omitempty"`
	JID             string         `json:"jid,omitempty"`
	Status          string         `json:"status"`
	LastContactedAt string         `json:"last_contacted_at,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       string         `json:"created_at"`
}

// ImportResult — итог импорта контактов.
type ImportResult struct {
	Received int `json:"received"`
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
}

// TemplateResponse — шаблон из API.
type TemplateResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
}

// MessageResponse — запись журнала отправок.
type MessageResponse struct {
	TaskID     string `json:"task_id"`
	AccountID  string `json:"account_id"`
	ContactID  string `json:"contact_id"`
	ContactJID string `json:"contact_jid,omitempty"`
	SentAt     string `json:"send_time"`
	Message    string `json:"message"`
	Result     string `json:"result"`
	Error      string `json:"error,omitempty"`
}

// --- Request types ---

// CreateAccountRequest — регистрация аккаунта.
type CreateAccountRequest struct {
	AccountID   string `json:"account_id"`
	ProfilePath string `json:"profile_path"`
	Phone       string `json:"phone,omitempty"`
	DailyLimit  *int   `json:"daily_limit,omitempty"`
}

// UpdateAccountRequest — изменение аккаунта.
type UpdateAccountRequest struct {
	ProfilePath *string `json:"profile_path,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	DailyLimit  *int    `json:"daily_limit,omitempty"`
}

// SendRequest — отправка сообщения.
type SendRequest struct {
	Message    string `json:"message,omitempty"`
	TemplateID string `json:"template_id,omitempty"`
}

// CreateBulkRequest — bulk-рассылка.
type CreateBulkRequest struct {
	Message    string   `json:"message,omitempty"`
	TemplateID string   `json:"template_id,omitempty"`
	AccountIDs []string `json:"account_ids,omitempty"`
	Mode       string   `json:"mode,omitempty"`
	Count      int      `json:"count,omitempty"`
}

// ContactInput — контакт для импорта.
type ContactInput struct {
	JID      string         `json:"jid,omitempty"`
	Name     string         `json:"name,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ListTasksOpts — параметры фильтрации task'ов.
type ListTasksOpts struct {
	AccountID string
	State     string
	Limit     int
}

// ListContactsOpts — параметры фильтрации контактов.
type ListContactsOpts struct {
	Status string
	Limit  int
	Offset int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Courier API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			// Синхронная отправка ждёт итог на стороне API до API_WAIT_TIMEOUT
			Timeout: 5 * time.Minute,
		},
	}
}

// --- Accounts ---

// ListAccounts возвращает аккаунты. activeOnly — только включённые и здоровые.
func (c *Client) ListAccounts(activeOnly bool) ([]AccountResponse, error) {
	params := url.Values{}
	if activeOnly {
		params.Set("active", "true")
	}

	var accounts []AccountResponse
	err := c.list("/api/v1/accounts", params, &accounts)
	return accounts, err
}

// CreateAccount регистрирует аккаунт.
func (c *Client) CreateAccount(req CreateAccountRequest) (*AccountResponse, error) {
	var acc AccountResponse
	err := c.post("/api/v1/accounts", req, &acc)
	return &acc, err
}

// GetAccount возвращает аккаунт по ID.
func (c *Client) GetAccount(id string) (*AccountResponse, error) {
	var acc AccountResponse
	err := c.get("/api/v1/accounts/"+url.PathEscape(id), &acc)
	return &acc, err
}

// UpdateAccount изменяет аккаунт.
func (c *Client) UpdateAccount(id string, req UpdateAccountRequest) (*AccountResponse, error) {
	var acc AccountResponse
	err := c.patch("/api/v1/accounts/"+url.PathEscape(id), req, &acc)
	return &acc, err
}

// EnableAccount включает аккаунт.
func (c *Client) EnableAccount(id string) (*AccountResponse, error) {
	var acc AccountResponse
	err := c.post("/api/v1/accounts/"+url.PathEscape(id)+"/enable", nil, &acc)
	return &acc, err
}

// DisableAccount выключает аккаунт.
func (c *Client) DisableAccount(id string) (*AccountResponse, error) {
	var acc AccountResponse
	err := c.post("/api/v1/accounts/"+url.PathEscape(id)+"/disable", nil, &acc)
	return &acc, err
}

// DeleteAccount удаляет аккаунт.
func (c *Client) DeleteAccount(id string) error {
	return c.delete("/api/v1/accounts/" + url.PathEscape(id))
}

// --- Sends ---

// Send создаёт send task. При wait=true API ждёт итог отправки.
func (c *Client) Send(accountID string, req SendRequest, wait bool) (*TaskResponse, error) {
	path := "/api/v1/accounts/" + url.PathEscape(accountID) + "/send"
	if !wait {
		path += "?wait=false"
	}

	var task TaskResponse
	err := c.post(path, req, &task)
	return &task, err
}

// ListTasks возвращает send task'и с фильтрацией.
func (c *Client) ListTasks(opts ListTasksOpts) ([]TaskResponse, error) {
	params := url.Values{}
	if opts.AccountID != "" {
		params.Set("account_id", opts.AccountID)
	}
	if opts.State != "" {
		params.Set("state", opts.State)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}

	var tasks []TaskResponse
	err := c.list("/api/v1/tasks", params, &tasks)
	return tasks, err
}

// GetTask возвращает send task по ID.
func (c *Client) GetTask(id string) (*TaskResponse, error) {
	var task TaskResponse
	err := c.get("/api/v1/tasks/"+id, &task)
	return &task, err
}

// CancelTask отменяет send task.
func (c *Client) CancelTask(id string) (*TaskResponse, error) {
	var task TaskResponse
	err := c.post("/api/v1/tasks/"+id+"/cancel", nil, &task)
	return &task, err
}

// --- Bulk sends ---

// CreateBulk создаёт bulk-рассылку.
func (c *Client) CreateBulk(req CreateBulkRequest) (*BulkResponse, error) {
	var bulk BulkResponse
	err := c.post("/api/v1/bulk-sends", req, &bulk)
	return &bulk, err
}

// ListBulks возвращает последние bulk-рассылки.
func (c *Client) ListBulks(limit int) ([]BulkResponse, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var bulks []BulkResponse
	err := c.list("/api/v1/bulk-sends", params, &bulks)
	return bulks, err
}

// GetBulk возвращает bulk со сводкой.
func (c *Client) GetBulk(id string) (*BulkResponse, error) {
	var bulk BulkResponse
	err := c.get("/api/v1/bulk-sends/"+id, &bulk)
	return &bulk, err
}

// ListBulkTasks возвращает task'и bulk.
func (c *Client) ListBulkTasks(id string) ([]TaskResponse, error) {
	var tasks []TaskResponse
	err := c.list("/api/v1/bulk-sends/"+id+"/tasks", nil, &tasks)
	return tasks, err
}

// --- Contacts ---

// ImportContacts загружает контакты.
func (c *Client) ImportContacts(contacts []ContactInput) (*ImportResult, error) {
	body := map[string][]ContactInput{"contacts": contacts}
	var result ImportResult
	err := c.post("/api/v1/contacts", body, &result)
	return &result, err
}

// ListContacts возвращает контакты с фильтрацией.
func (c *Client) ListContacts(opts ListContactsOpts) ([]ContactResponse, error) {
	params := url.Values{}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		params.Set("offset", strconv.Itoa(opts.Offset))
	}

	var contacts []ContactResponse
	err := c.list("/api/v1/contacts", params, &contacts)
	return contacts, err
}

// InvalidateContact исключает контакт из рассылки.
func (c *Client) InvalidateContact(id string) (*ContactResponse, error) {
	var contact ContactResponse
	err := c.post("/api/v1/contacts/"+url.PathEscape(id)+"/invalid", nil, &contact)
	return &contact, err
}

// --- Templates ---

// ListTemplates возвращает шаблоны.
func (c *Client) ListTemplates() ([]TemplateResponse, error) {
	var templates []TemplateResponse
	err := c.list("/api/v1/templates", nil, &templates)
	return templates, err
}

// CreateTemplate создаёт шаблон.
func (c *Client) CreateTemplate(name, body string) (*TemplateResponse, error) {
	req := map[string]string{"name": name, "body": body}
	var tmpl TemplateResponse
	err := c.post("/api/v1/templates", req, &tmpl)
	return &tmpl, err
}

// DeleteTemplate удаляет шаблон.
func (c *Client) DeleteTemplate(id string) error {
	return c.delete("/api/v1/templates/" + id)
}

// PreviewTemplate рендерит шаблон для контакта.
func (c *Client) PreviewTemplate(id string, contact ContactInput) (string, error) {
	req := map[string]any{"contact": contact}
	var resp struct {
		Message string `json:"message"`
	}
	err := c.post("/api/v1/templates/"+id+"/preview", req, &resp)
	return resp.Message, err
}

// --- Message log ---

// ListMessages возвращает журнал отправок.
func (c *Client) ListMessages(accountID string, limit int) ([]MessageResponse, error) {
	params := url.Values{}
	if accountID != "" {
		params.Set("account_id", accountID)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var entries []MessageResponse
	err := c.list("/api/v1/messages", params, &entries)
	return entries, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) patch(path string, body any, result any) error {
	return c.doData(http.MethodPatch, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// APIError — ошибка, возвращённая API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	apiErr := &APIError{Status: resp.StatusCode}
	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err == nil {
		apiErr.Code = er.Error.Code
		apiErr.Message = er.Error.Message
	}
	return apiErr
}
