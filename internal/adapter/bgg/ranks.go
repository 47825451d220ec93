package bgg

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/heartmarshall/bggcatalog/internal/domain"
)

// FetchRankedGames downloads the ranked dump (a ZIP holding one CSV) and
// returns the first n rows in rank order. Rows without a positive rank, an
// id, or a name are skipped.
func (c *Client) FetchRankedGames(ctx context.Context, ranksURL string, n int) ([]domain.RankedGame, error) {
	if ranksURL == "" {
		return nil, fmt.Errorf("bgg: ranks dump URL is not set: %w", domain.ErrConfiguration)
	}

	c.log.InfoContext(ctx, "fetching ranked dump", slog.String("url", ranksURL), slog.Int("n", n))

	attempt := 0
	var body []byte
	for {
		status, b, err := c.get(ctx, ranksURL)
		if err != nil {
			return nil, err
		}
		if status == http.StatusOK {
			body = b
			break
		}
		attempt++
		if attempt > c.cfg.MaxRetries {
			return nil, fmt.Errorf("bgg: ranks dump returned status %d after %d retries", status, c.cfg.MaxRetries)
		}
		delay := min(time.Duration(1<<attempt)*time.Second, c.cfg.MaxBackoff)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	games, err := parseRanksZip(body, n)
	if err != nil {
		return nil, err
	}

	c.log.InfoContext(ctx, "ranked dump parsed", slog.Int("games", len(games)))
	return games, nil
}

func parseRanksZip(body []byte, n int) ([]domain.RankedGame, error) {
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, fmt.Errorf("bgg: ranks dump is not a valid zip: %w", domain.ErrDataIntegrity)
	}

	var member *zip.File
	for _, f := range zr.File {
		if strings.HasSuffix(strings.ToLower(f.Name), ".csv") {
			member = f
			break
		}
	}
	if member == nil {
		return nil, fmt.Errorf("bgg: ranks dump contains no csv member: %w", domain.ErrDataIntegrity)
	}

	rc, err := member.Open()
	if err != nil {
		return nil, fmt.Errorf("bgg: open csv member: %w", err)
	}
	defer rc.Close()

	games, err := parseRanksCSV(rc, n)
	if err != nil {
		return nil, err
	}
	if len(games) == 0 {
		return nil, fmt.Errorf("bgg: ranks dump yielded no usable rows: %w", domain.ErrDataIntegrity)
	}
	return games, nil
}

func parseRanksCSV(r io.Reader, n int) ([]domain.RankedGame, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("bgg: read csv header: %w", domain.ErrDataIntegrity)
	}
	col := map[string]int{}
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"rank", "id", "name"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("bgg: csv header missing %q column: %w", required, domain.ErrDataIntegrity)
		}
	}

	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var games []domain.RankedGame
	for len(games) < n {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bgg: read csv row: %w", domain.ErrDataIntegrity)
		}

		rank, err := strconv.Atoi(field(rec, "rank"))
		if err != nil || rank <= 0 {
			continue
		}
		id := field(rec, "id")
		name := field(rec, "name")
		if id == "" || name == "" {
			continue
		}

		game := domain.RankedGame{
			BGGID: id,
			Title: name,
			Kind:  domain.GameKindBase,
			Rank:  &rank,
		}
		if isExp := field(rec, "is_expansion"); isExp == "1" || strings.EqualFold(isExp, "true") {
			game.Kind = domain.GameKindExpansion
		}
		if avg, err := strconv.ParseFloat(field(rec, "average"), 64); err == nil {
			game.AvgRating = &avg
		}
		if voters, err := strconv.Atoi(field(rec, "usersrated")); err == nil {
			game.NumVoters = &voters
		}
		games = append(games, game)
	}
	return games, nil
}
