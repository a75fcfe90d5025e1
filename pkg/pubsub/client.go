// Package pubsub is the Google Cloud Pub/Sub transport for outbox events.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	gpubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errClosed            = errors.New("pubsub client is closed")
)

// Client publishes to topics of one project. Publishers are created lazily
// per topic and flushed on Close.
type Client struct {
	api          *gpubsub.Client
	project      string
	topic        string
	subscription string

	mu         sync.Mutex
	publishers map[string]*gpubsub.Publisher
}

// NewClient connects and checks that the orders topic exists. Extra options
// are appended after the credential options derived from gcp.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger, extra ...option.ClientOption) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}
	api, err := gpubsub.NewClient(ctx, project, append(clientOptions(gcp), extra...)...)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	c := &Client{
		api:          api,
		project:      project,
		topic:        cfg.OrdersTopic,
		subscription: cfg.OrdersSubscription,
		publishers:   map[string]*gpubsub.Publisher{},
	}
	if err := c.Ping(ctx); err != nil {
		_ = api.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "topic", c.topic), "pubsub connected")
	}
	return c, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	if js := strings.TrimSpace(gcp.CredentialsJSON); js != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(js))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

// Publish hands msg to the topic's publisher. The returned result resolves
// once Pub/Sub acknowledges the message.
func (c *Client) Publish(ctx context.Context, topic string, msg *gpubsub.Message) (*gpubsub.PublishResult, error) {
	p, err := c.publisher(topic)
	if err != nil {
		return nil, err
	}
	return p.Publish(ctx, msg), nil
}

func (c *Client) publisher(topic string) (*gpubsub.Publisher, error) {
	if c == nil || c.api == nil {
		return nil, errClosed
	}
	name := resourceName(c.project, topic, "topics")
	if name == "" {
		return nil, fmt.Errorf("topic %q is not a valid name", topic)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishers == nil {
		return nil, errClosed
	}
	p, ok := c.publishers[name]
	if !ok {
		p = c.api.Publisher(name)
		c.publishers[name] = p
	}
	return p, nil
}

// Ping checks the orders topic and, when configured, the orders
// subscription.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.api == nil {
		return errClosed
	}
	err := exists(ctx, "topic", resourceName(c.project, c.topic, "topics"), func(name string) error {
		_, err := c.api.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name})
		return err
	})
	if err != nil || strings.TrimSpace(c.subscription) == "" {
		return err
	}
	return exists(ctx, "subscription", resourceName(c.project, c.subscription, "subscriptions"), func(name string) error {
		_, err := c.api.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: name})
		return err
	})
}

func exists(_ context.Context, kind, name string, get func(string) error) error {
	if name == "" {
		return fmt.Errorf("%s not configured", kind)
	}
	err := get(name)
	switch status.Code(err) {
	case codes.OK:
		return nil
	case codes.NotFound:
		return fmt.Errorf("%s %s does not exist", kind, name)
	default:
		return fmt.Errorf("lookup %s %s: %w", kind, name, err)
	}
}

// Close flushes pending messages and releases the connection. Publish fails
// afterwards.
func (c *Client) Close() error {
	if c == nil || c.api == nil {
		return nil
	}
	c.mu.Lock()
	for _, p := range c.publishers {
		p.Stop()
	}
	c.publishers = nil
	c.mu.Unlock()
	return c.api.Close()
}

// resourceName expands a short id to projects/<project>/<kind>/<id>. Full
// resource names pass through unchanged.
func resourceName(project, id, kind string) string {
	id = strings.TrimSpace(id)
	switch {
	case id == "":
		return ""
	case strings.HasPrefix(id, "projects/") && strings.Contains(id, "/"+kind+"/"):
		return id
	case strings.TrimSpace(project) == "":
		return ""
	}
	return "projects/" + strings.TrimSpace(project) + "/" + kind + "/" + id
}
