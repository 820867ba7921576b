package client

import (
	"context"
	"fmt"

	"github.com/thegamersstation/gsm/internal/api"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client wraps the gRPC connection to the daemon's worker service.
type Client struct {
	conn *grpc.ClientConn
}

// New dials the daemon's Unix domain socket.
func New(socketPath string, opts ...grpc.DialOption) (*Client, error) {
	return Dial("unix://"+socketPath, opts...)
}

// Dial connects to target. Extra options are appended to insecure
// transport credentials.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) call(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", method, err)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, api.FullMethod(method), in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// SkipWaiting activates a waiting worker.
func (c *Client) SkipWaiting(ctx context.Context) error {
	_, err := c.call(ctx, api.MethodSkipWaiting, nil)
	return err
}

// ClearCache deletes every cache bucket.
func (c *Client) ClearCache(ctx context.Context) (bool, error) {
	out, err := c.call(ctx, api.MethodClearCache, nil)
	if err != nil {
		return false, err
	}
	return out.GetFields()["success"].GetBoolValue(), nil
}

// CacheURLs asks the worker to fetch urls into the dynamic bucket.
func (c *Client) CacheURLs(ctx context.Context, urls []string) (bool, error) {
	list := make([]any, len(urls))
	for i, u := range urls {
		list[i] = u
	}
	out, err := c.call(ctx, api.MethodCacheURLs, map[string]any{"urls": list})
	if err != nil {
		return false, err
	}
	return out.GetFields()["success"].GetBoolValue(), nil
}

// Status is the worker status reply.
type Status struct {
	Profile               string
	State                 string
	Version               string
	Buckets               map[string]int
	UptimeMs              int64
	QueuedRequests        int
	MirroredConversations int
}

// Status returns the worker lifecycle state and bucket sizes.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	out, err := c.call(ctx, api.MethodStatus, nil)
	if err != nil {
		return nil, err
	}
	f := out.GetFields()
	st := &Status{
		Profile:               f["profile"].GetStringValue(),
		State:                 f["state"].GetStringValue(),
		Version:               f["version"].GetStringValue(),
		Buckets:               map[string]int{},
		UptimeMs:              int64(f["uptime_ms"].GetNumberValue()),
		QueuedRequests:        int(f["queued_requests"].GetNumberValue()),
		MirroredConversations: int(f["mirrored_conversations"].GetNumberValue()),
	}
	for name, v := range f["buckets"].GetStructValue().GetFields() {
		st.Buckets[name] = int(v.GetNumberValue())
	}
	return st, nil
}

// Sync replays queued offline requests and returns replayed and failed
// counts.
func (c *Client) Sync(ctx context.Context) (replayed, failed int, err error) {
	out, err := c.call(ctx, api.MethodSync, nil)
	if err != nil {
		return 0, 0, err
	}
	f := out.GetFields()
	return int(f["replayed"].GetNumberValue()), int(f["failed"].GetNumberValue()), nil
}

// ListConversations returns mirrored conversations as generic maps.
func (c *Client) ListConversations(ctx context.Context, limit, offset int) ([]map[string]any, error) {
	out, err := c.call(ctx, api.MethodListConversations, map[string]any{"limit": limit, "offset": offset})
	if err != nil {
		return nil, err
	}
	return listOf(out, "conversations"), nil
}

// ListMessages returns mirrored messages of a conversation, oldest first.
func (c *Client) ListMessages(ctx context.Context, conversationID string, limit int) ([]map[string]any, error) {
	out, err := c.call(ctx, api.MethodListMessages, map[string]any{"conversation_id": conversationID, "limit": limit})
	if err != nil {
		return nil, err
	}
	return listOf(out, "messages"), nil
}

func listOf(out *structpb.Struct, key string) []map[string]any {
	var items []map[string]any
	for _, v := range out.GetFields()[key].GetListValue().GetValues() {
		items = append(items, v.GetStructValue().AsMap())
	}
	return items
}

// Event is one bus event relayed by the daemon.
type Event struct {
	ID         string
	Kind       string
	OccurredMs int64
	Payload    any
}

// WatchEvents streams daemon events under namespace until ctx ends. The
// returned channel closes when the stream does.
func (c *Client) WatchEvents(ctx context.Context, namespace string) (<-chan Event, error) {
	stream, err := c.conn.NewStream(ctx, &api.WatchEventsStream, api.FullMethod(api.MethodWatchEvents))
	if err != nil {
		return nil, err
	}
	in, err := structpb.NewStruct(map[string]any{"namespace": namespace})
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}

	ch := make(chan Event, 64)
	go func() {
		defer close(ch)
		for {
			out := new(structpb.Struct)
			if err := stream.RecvMsg(out); err != nil {
				return
			}
			f := out.GetFields()
			evt := Event{
				ID:         f["event_id"].GetStringValue(),
				Kind:       f["kind"].GetStringValue(),
				OccurredMs: int64(f["occurred_at_unix_ms"].GetNumberValue()),
				Payload:    f["payload"].AsInterface(),
			}
			select {
			case ch <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
