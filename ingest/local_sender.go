package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"lookbook/api/tracker"
)

// LocalSender delivers tracker batches straight to the service, for events
// the server emits itself. Request attribution comes from the payload's
// in-process fields, which never travel over HTTP.
func LocalSender(svc *Service) tracker.Sender {
	return tracker.SenderFunc(func(ctx context.Context, batch []tracker.Payload) (tracker.Result, error) {
		items := make([]Attributed, 0, len(batch))
		for _, p := range batch {
			raw, err := payloadToRaw(p)
			if err != nil {
				return tracker.Result{}, err
			}
			items = append(items, Attributed{
				Raw: raw,
				Request: RequestContext{
					ClientIP:  p.ClientIP,
					UserAgent: p.UserAgent,
					Referer:   p.Referrer,
				},
			})
		}

		n, err := svc.IngestAttributed(ctx, items)
		if err != nil {
			return tracker.Result{}, err
		}
		return tracker.Result{Inserted: n}, nil
	})
}

func payloadToRaw(p tracker.Payload) (RawEvent, error) {
	raw := RawEvent{
		UserID:       p.UserID,
		SessionID:    p.SessionID,
		EventType:    string(p.EventType),
		ResourceType: string(p.ResourceType),
		ResourceID:   p.ResourceID,
		ResourceName: p.ResourceName,
		ProductID:    p.ProductID,
		MoodboardID:  p.MoodboardID,
		Referrer:     p.Referrer,
		URL:          p.URL,
	}
	if p.Metadata != nil {
		b, err := json.Marshal(p.Metadata)
		if err != nil {
			return RawEvent{}, fmt.Errorf("encode %s metadata: %w", p.EventType, err)
		}
		raw.Metadata = b
	}
	return raw, nil
}
