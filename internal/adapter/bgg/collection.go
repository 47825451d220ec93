package bgg

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/heartmarshall/bggcatalog/internal/domain"
)

// collectionSubtypes are fetched separately because the service only
// reports base games and expansions on distinct subtype queries.
var collectionSubtypes = []struct {
	subtype string
	exclude string
	kind    domain.GameKind
}{
	{subtype: "boardgame", exclude: "boardgameexpansion", kind: domain.GameKindBase},
	{subtype: "boardgameexpansion", exclude: "", kind: domain.GameKindExpansion},
}

// FetchOwnedCollection returns a username's owned games across both
// subtypes. A queued (202) response is polled until the collection is
// ready; any other non-200 is retried on a fixed interval.
func (c *Client) FetchOwnedCollection(ctx context.Context, username string) ([]domain.OwnedGame, error) {
	var owned []domain.OwnedGame

	for i, st := range collectionSubtypes {
		items, err := c.fetchCollectionSubtype(ctx, username, st.subtype, st.exclude)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			owned = append(owned, mapCollectionItem(item, st.kind))
		}

		// Pace between subtype calls, not after the last one.
		if i < len(collectionSubtypes)-1 {
			if err := c.sleep(ctx, c.cfg.CollectionPacing); err != nil {
				return nil, err
			}
		}
	}

	c.log.InfoContext(ctx, "collection fetched",
		slog.String("username", username),
		slog.Int("games", len(owned)),
	)
	return owned, nil
}

func (c *Client) fetchCollectionSubtype(ctx context.Context, username, subtype, exclude string) ([]collectionItem, error) {
	params := url.Values{}
	params.Set("username", username)
	params.Set("own", "1")
	params.Set("stats", "1")
	params.Set("subtype", subtype)
	if exclude != "" {
		params.Set("excludesubtype", exclude)
	}
	reqURL := c.cfg.BaseURL + "/collection?" + params.Encode()

	for attempt := 1; attempt <= c.cfg.MaxQueuedRetries; attempt++ {
		status, body, err := c.get(ctx, reqURL)
		if err != nil {
			return nil, err
		}

		switch status {
		case http.StatusOK:
			var resp collectionResponse
			if err := xml.Unmarshal(body, &resp); err != nil {
				return nil, fmt.Errorf("bgg: decode collection xml: %w", err)
			}
			return resp.Items, nil

		case http.StatusAccepted:
			c.log.DebugContext(ctx, "collection queued, polling",
				slog.String("username", username),
				slog.String("subtype", subtype),
				slog.Int("attempt", attempt),
			)
			if err := c.sleep(ctx, queuedDelay(attempt)); err != nil {
				return nil, err
			}

		default:
			c.log.WarnContext(ctx, "collection returned unexpected status, retrying",
				slog.String("username", username),
				slog.Int("status", status),
				slog.Int("attempt", attempt),
			)
			if err := c.sleep(ctx, 5*time.Second); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("bgg: collection for %q not ready after %d attempts", username, c.cfg.MaxQueuedRetries)
}

func mapCollectionItem(item collectionItem, kind domain.GameKind) domain.OwnedGame {
	// Kind comes from the subtype query itself; the item attribute repeats it.
	g := domain.OwnedGame{
		BGGID: item.ObjectID,
		Title: item.Name,
		Kind:  kind,
	}
	if avg, err := strconv.ParseFloat(item.Stats.Rating.Average.Value, 64); err == nil && avg > 0 {
		g.AvgRating = &avg
	}
	if voters, err := strconv.Atoi(item.Stats.Rating.UsersRated.Value); err == nil && voters > 0 {
		g.NumVoters = &voters
	}
	return g
}
