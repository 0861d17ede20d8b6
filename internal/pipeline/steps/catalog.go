// Attic - Personal Music Listening Warehouse and Rediscovery Pipeline
// Copyright 2026 Attic Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attic-audio/attic

package steps

import (
	"context"
	"fmt"
	"sort"

	"github.com/attic-audio/attic/internal/identity"
	"github.com/attic-audio/attic/internal/logging"
	"github.com/attic-audio/attic/internal/pipeline"
)

// Edge link types materialized in catalog_links. Edges always point from
// the finer-grained entity to the coarser or related one.
const (
	linkRecordingRelease    = "recording-release"
	linkRecordingArtist     = "recording-artist"
	linkReleaseReleaseGroup = "release-release_group"
	linkReleaseArtist       = "release-artist"
	linkReleaseGroupArtist  = "release_group-artist"
)

type catalogEdge struct {
	linkType string
	from     string
	to       string
}

// CatalogLinks extracts the relationship graph from catalog annotation
// payloads: recording to release, recording to artist, release to release
// group, and artist credits at release and release-group grain. Release
// group to artist edges are also derived transitively through releases so
// consumers never have to compose the two hops themselves.
func CatalogLinks() pipeline.Step {
	const table = "catalog_links"
	return &model{
		name: table,
		build: func(ctx context.Context, run *pipeline.Run) error {
			raw, err := run.DB.Conn().QueryContext(ctx, `
				SELECT CAST(mbid AS TEXT), entity, payload_json
				FROM catalog_annotations
				WHERE payload_json IS NOT NULL`)
			if err != nil {
				return fmt.Errorf("read catalog_annotations: %w", err)
			}
			defer raw.Close()

			edges := make(map[catalogEdge]struct{})
			add := func(linkType, from, to string) {
				fromID, fromOK := identity.ParseMBID(from)
				toID, toOK := identity.ParseMBID(to)
				if fromOK && toOK {
					edges[catalogEdge{linkType, fromID.String(), toID.String()}] = struct{}{}
				}
			}

			skipped := 0
			for raw.Next() {
				var mbid, entity, data string
				if err := raw.Scan(&mbid, &entity, &data); err != nil {
					return fmt.Errorf("scan annotation: %w", err)
				}
				p, err := decodeAnnotation(data)
				if err != nil {
					logging.Warn().Err(err).Str("mbid", mbid).Str("entity", entity).
						Msg("Skipping undecodable annotation payload")
					skipped++
					continue
				}

				switch entity {
				case "recording":
					for _, credit := range p.ArtistCredit {
						add(linkRecordingArtist, mbid, credit.Artist.ID)
					}
					for _, rel := range p.Releases {
						add(linkRecordingRelease, mbid, rel.ID)
						if rel.ReleaseGroup != nil {
							add(linkReleaseReleaseGroup, rel.ID, rel.ReleaseGroup.ID)
						}
					}
				case "release":
					if p.ReleaseGroup != nil {
						add(linkReleaseReleaseGroup, mbid, p.ReleaseGroup.ID)
					}
					for _, credit := range p.ArtistCredit {
						add(linkReleaseArtist, mbid, credit.Artist.ID)
					}
				case "release-group":
					for _, credit := range p.ArtistCredit {
						add(linkReleaseGroupArtist, mbid, credit.Artist.ID)
					}
				}
			}
			if err := raw.Err(); err != nil {
				return fmt.Errorf("read catalog_annotations: %w", err)
			}
			if skipped > 0 {
				logging.Warn().Int("skipped", skipped).Msg("Annotation payloads skipped")
			}

			// release_group-artist through release credits.
			releaseGroupOf := make(map[string][]string)
			for e := range edges {
				if e.linkType == linkReleaseReleaseGroup {
					releaseGroupOf[e.from] = append(releaseGroupOf[e.from], e.to)
				}
			}
			for e := range edges {
				if e.linkType != linkReleaseArtist {
					continue
				}
				for _, group := range releaseGroupOf[e.from] {
					edges[catalogEdge{linkReleaseGroupArtist, group, e.to}] = struct{}{}
				}
			}

			// Stable insert order keeps re-runs byte-identical.
			sorted := make([]catalogEdge, 0, len(edges))
			for e := range edges {
				sorted = append(sorted, e)
			}
			sort.Slice(sorted, func(i, j int) bool {
				a, b := sorted[i], sorted[j]
				if a.linkType != b.linkType {
					return a.linkType < b.linkType
				}
				if a.from != b.from {
					return a.from < b.from
				}
				return a.to < b.to
			})

			rows := make([][]any, 0, len(sorted))
			for _, e := range sorted {
				rows = append(rows, []any{e.linkType, e.from, e.to})
			}

			if err := run.DB.CreateBuildTable(ctx, table, `
				link_type TEXT NOT NULL,
				from_mbid UUID NOT NULL,
				to_mbid UUID NOT NULL`); err != nil {
				return err
			}
			if err := insertRows(ctx, run.DB, table, 3, rows); err != nil {
				return err
			}
			return run.DB.PublishTable(ctx, table)
		},
	}
}

// CatalogEntities extracts display metadata (title, credited artist name)
// per annotated entity, for human-readable candidate output.
func CatalogEntities() pipeline.Step {
	const table = "catalog_entities"
	return &model{
		name: table,
		build: func(ctx context.Context, run *pipeline.Run) error {
			raw, err := run.DB.Conn().QueryContext(ctx, `
				SELECT CAST(mbid AS TEXT), entity, payload_json
				FROM catalog_annotations
				WHERE payload_json IS NOT NULL`)
			if err != nil {
				return fmt.Errorf("read catalog_annotations: %w", err)
			}
			defer raw.Close()

			var rows [][]any
			for raw.Next() {
				var mbid, entity, data string
				if err := raw.Scan(&mbid, &entity, &data); err != nil {
					return fmt.Errorf("scan annotation: %w", err)
				}
				p, err := decodeAnnotation(data)
				if err != nil {
					continue // already reported by catalog_links
				}

				title := p.Title
				if entity == "artist" {
					title = p.Name
				}
				var artistName any
				if len(p.ArtistCredit) > 0 {
					artistName = textOrNil(creditedName(p.ArtistCredit))
				}
				rows = append(rows, []any{mbid, entity, textOrNil(title), artistName})
			}
			if err := raw.Err(); err != nil {
				return fmt.Errorf("read catalog_annotations: %w", err)
			}

			if err := run.DB.CreateBuildTable(ctx, table, `
				mbid UUID NOT NULL,
				entity TEXT NOT NULL,
				title TEXT,
				artist_name TEXT`); err != nil {
				return err
			}
			if err := insertRows(ctx, run.DB, table, 4, rows); err != nil {
				return err
			}
			return run.DB.PublishTable(ctx, table)
		},
	}
}

// CatalogArtistPopularity decodes the catalog's global per-artist listen
// statistics, the denominator of the novelty factor in artist discovery.
func CatalogArtistPopularity() pipeline.Step {
	const table = "catalog_artist_popularity"
	return &model{
		name: table,
		build: func(ctx context.Context, run *pipeline.Run) error {
			raw, err := run.DB.Conn().QueryContext(ctx, `
				SELECT CAST(artist_mbid AS TEXT), payload_json
				FROM artist_stats
				WHERE payload_json IS NOT NULL`)
			if err != nil {
				return fmt.Errorf("read artist_stats: %w", err)
			}
			defer raw.Close()

			var rows [][]any
			for raw.Next() {
				var mbid, data string
				if err := raw.Scan(&mbid, &data); err != nil {
					return fmt.Errorf("scan artist stats: %w", err)
				}
				p, err := decodeArtistStats(data)
				if err != nil {
					logging.Warn().Err(err).Str("artist_mbid", mbid).
						Msg("Skipping undecodable artist stats payload")
					continue
				}
				rows = append(rows, []any{mbid, p.TotalListenCount, p.ListenerCount})
			}
			if err := raw.Err(); err != nil {
				return fmt.Errorf("read artist_stats: %w", err)
			}

			if err := run.DB.CreateBuildTable(ctx, table, `
				artist_mbid UUID NOT NULL,
				total_listen_count BIGINT NOT NULL,
				listener_count BIGINT NOT NULL`); err != nil {
				return err
			}
			if err := insertRows(ctx, run.DB, table, 3, rows); err != nil {
				return err
			}
			return run.DB.PublishTable(ctx, table)
		},
	}
}

// creditedName joins artist credit names the way the catalog renders them.
func creditedName(credits []artistCredit) string {
	if len(credits) == 1 {
		return credits[0].Name
	}
	name := ""
	for i, c := range credits {
		if i > 0 {
			name += ", "
		}
		name += c.Name
	}
	return name
}
