package bgg

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/heartmarshall/bggcatalog/internal/domain"
)

// DetailStream pulls extended game details in fixed-size chunks. The next
// chunk is only requested when the consumer asks for it, so a slow consumer
// never piles up remote calls.
//
// Usage follows the scanner pattern:
//
//	stream := client.StreamDetails(ids, 20)
//	for stream.Next(ctx) {
//	    apply(stream.Batch())
//	}
//	if err := stream.Err(); err != nil { ... }
type DetailStream struct {
	client    *Client
	ids       []string
	batchSize int

	pos   int
	batch []domain.GameDetail
	err   error
}

// StreamDetails creates a lazy detail stream over the given external ids.
func (c *Client) StreamDetails(ids []string, batchSize int) *DetailStream {
	if batchSize <= 0 {
		batchSize = 20
	}
	return &DetailStream{client: c, ids: ids, batchSize: batchSize}
}

// Total returns the number of ids the stream covers.
func (s *DetailStream) Total() int { return len(s.ids) }

// Next fetches the next chunk. It returns false when the stream is
// exhausted or a fetch failed; check Err afterwards.
func (s *DetailStream) Next(ctx context.Context) bool {
	if s.err != nil || s.pos >= len(s.ids) {
		return false
	}

	end := min(s.pos+s.batchSize, len(s.ids))
	chunk := s.ids[s.pos:end]

	batch, err := s.client.fetchDetails(ctx, chunk)
	if err != nil {
		s.err = err
		return false
	}
	s.batch = batch
	s.pos = end

	// Pace before the next chunk, not after the last.
	if s.pos < len(s.ids) {
		if err := s.client.sleep(ctx, s.client.cfg.ChunkPacing); err != nil {
			s.err = err
			return false
		}
	}
	return true
}

// Batch returns the chunk fetched by the last successful Next call.
func (s *DetailStream) Batch() []domain.GameDetail { return s.batch }

// Err returns the first error the stream hit, if any.
func (s *DetailStream) Err() error { return s.err }

// fetchDetails loads one chunk, polling while the service still processes
// the request.
func (c *Client) fetchDetails(ctx context.Context, ids []string) ([]domain.GameDetail, error) {
	reqURL := c.cfg.BaseURL + "/thing?stats=1&id=" + strings.Join(ids, ",")

	for attempt := 1; ; attempt++ {
		status, body, err := c.get(ctx, reqURL)
		if err != nil {
			return nil, err
		}

		if status == http.StatusOK {
			var resp thingsResponse
			decodeErr := xml.Unmarshal(body, &resp)
			if decodeErr == nil {
				details := make([]domain.GameDetail, 0, len(resp.Items))
				for _, item := range resp.Items {
					details = append(details, mapThingItem(item))
				}
				return details, nil
			}
			if !isProcessingNotice(body) {
				return nil, fmt.Errorf("bgg: decode things xml: %w", decodeErr)
			}
			// A 200 carrying only the queue notice means the chunk is not
			// ready yet; poll it like a non-200 below.
		}

		if attempt >= c.cfg.MaxBatchRetries {
			return nil, fmt.Errorf("bgg: detail chunk not ready after %d attempts (status %d)",
				c.cfg.MaxBatchRetries, status)
		}
		c.log.DebugContext(ctx, "detail chunk still processing",
			slog.Int("status", status),
			slog.Int("attempt", attempt),
			slog.Int("chunk", len(ids)),
		)
		if err := c.sleep(ctx, queuedDelay(attempt)); err != nil {
			return nil, err
		}
	}
}

// isProcessingNotice reports whether a 200 body is the message-only payload
// the service returns while a batch request is still being generated, e.g.
// "Your request for this collection has been accepted and will be processed".
func isProcessingNotice(body []byte) bool {
	var msg struct {
		XMLName xml.Name `xml:"message"`
		Text    string   `xml:",chardata"`
	}
	if xml.Unmarshal(body, &msg) != nil {
		return false
	}
	text := strings.ToLower(msg.Text)
	for _, hint := range []string{"process", "queue", "try again", "retry"} {
		if strings.Contains(text, hint) {
			return true
		}
	}
	return false
}

func mapThingItem(item thingItem) domain.GameDetail {
	d := domain.GameDetail{BGGID: item.ID}

	if y := strings.TrimSpace(item.YearPublished.Value); y != "" && y != "0" {
		d.Year = &y
	}

	ratings := item.Statistics.Ratings
	if avg, err := strconv.ParseFloat(ratings.Average.Value, 64); err == nil && avg > 0 {
		d.AvgRating = &avg
	}
	if voters, err := strconv.Atoi(ratings.UsersRated.Value); err == nil && voters > 0 {
		d.NumVoters = &voters
	}
	if w, err := strconv.ParseFloat(ratings.AverageWeight.Value, 64); err == nil && w > 0 {
		rounded := math.Round(w*100) / 100
		d.Weight = &rounded
	}
	if n, err := strconv.Atoi(ratings.NumWeights.Value); err == nil && n > 0 {
		d.WeightVotes = &n
	}

	for _, rank := range ratings.Ranks.Ranks {
		switch {
		case rank.Type == "subtype" && rank.Name == "boardgame":
			if v, err := strconv.Atoi(rank.Value); err == nil && v > 0 {
				d.BGGRank = &v
			}
		case rank.Type == "family":
			if name, ok := familyRankNames[rank.Name]; ok {
				d.Families = append(d.Families, name)
			}
		}
	}

	for _, link := range item.Links {
		if link.Type == "boardgamecategory" && link.Value != "" {
			d.Categories = append(d.Categories, link.Value)
		}
	}

	d.PlayerCounts = parseNumPlayersPoll(item.Polls)
	return d
}

// parseNumPlayersPoll extracts the suggested player count poll. Open-ended
// rows ("4+") are discarded.
func parseNumPlayersPoll(polls []thingPoll) []domain.PlayerCountVotes {
	var out []domain.PlayerCountVotes
	for _, poll := range polls {
		if poll.Name != "suggested_numplayers" {
			continue
		}
		for _, res := range poll.Results {
			if strings.HasSuffix(res.NumPlayers, "+") {
				continue
			}
			count, err := strconv.Atoi(res.NumPlayers)
			if err != nil || count < 1 {
				continue
			}

			var best, rec, notrec int
			for _, r := range res.Result {
				switch r.Value {
				case "Best":
					best = r.NumVotes
				case "Recommended":
					rec = r.NumVotes
				case "Not Recommended":
					notrec = r.NumVotes
				}
			}
			out = append(out, domain.NewPlayerCountVotes(count, best, rec, notrec))
		}
	}
	return out
}
