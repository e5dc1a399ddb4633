package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"brianhub/internal/models/change"
)

type PushRequest struct {
	Changes []change.Change `json:"changes"`
}

type PushResponse struct {
	Applied int `json:"applied"`
}

type PullResponse struct {
	Changes    []change.Change `json:"changes"`
	NextCursor int64           `json:"next_cursor"`
}

// Client гоняет очередь и курсор через /sync/push и /sync/pull. Воркспейс
// и идентификатор клиента уходят заголовками, как и в остальном API.
type Client struct {
	baseURL  string
	clientID string
	http     *http.Client
}

func NewClient(baseURL, clientID string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, clientID: clientID, http: httpClient}
}

func (c *Client) ClientID() string {
	return c.clientID
}

type SyncResult struct {
	Pushed       int
	Pulled       int
	NextCursor   int64
	NeedsRefresh bool
}

// SyncNow: сначала выталкиваем накопленную очередь одним запросом, затем
// тянем чужие изменения с курсора и вливаем их в снимок. Свои записи
// отфильтровываются по client_id, чтобы не применять их второй раз.
// Курсор монотонный: вызывающий обязан сохранять NextCursor и никогда не
// тянуть с меньшим.
func (c *Client) SyncNow(ctx context.Context, workspaceID string, snap *Snapshot, queue QueueState, cursor int64, mc MergeContext) (QueueState, SyncResult, error) {
	result := SyncResult{NextCursor: cursor}

	if len(queue.PendingChanges) > 0 {
		var pushRes PushResponse
		req := PushRequest{Changes: queue.PendingChanges}
		if err := c.post(ctx, "/sync/push", workspaceID, req, &pushRes); err != nil {
			return queue, result, fmt.Errorf("push изменений: %w", err)
		}
		result.Pushed = len(queue.PendingChanges)
		queue = QueueState{LocalSeq: queue.LocalSeq, PendingChanges: []change.Change{}}
	}

	var pullRes PullResponse
	if err := c.get(ctx, "/sync/pull?cursor="+strconv.FormatInt(cursor, 10), workspaceID, &pullRes); err != nil {
		return queue, result, fmt.Errorf("pull изменений: %w", err)
	}

	foreign := make([]change.Change, 0, len(pullRes.Changes))
	for _, ch := range pullRes.Changes {
		if ch.ClientID == c.clientID {
			continue
		}
		foreign = append(foreign, ch)
	}

	result.NeedsRefresh = ApplyRemoteChanges(snap, foreign, mc)
	result.Pulled = len(pullRes.Changes)
	if pullRes.NextCursor > cursor {
		result.NextCursor = pullRes.NextCursor
	}
	return queue, result, nil
}

func (c *Client) post(ctx context.Context, path, workspaceID string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, workspaceID, out)
}

func (c *Client) get(ctx context.Context, path, workspaceID string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, workspaceID, out)
}

func (c *Client) do(req *http.Request, workspaceID string, out any) error {
	req.Header.Set("X-Workspace-Id", workspaceID)
	req.Header.Set("X-Client-Id", c.clientID)

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("неожиданный статус %d", res.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}
