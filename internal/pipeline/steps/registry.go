// Attic - Personal Music Listening Warehouse and Rediscovery Pipeline
// Copyright 2026 Attic Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attic-audio/attic

package steps

import (
	"github.com/attic-audio/attic/internal/pipeline"
)

// All returns every transformation step of the warehouse, unordered; the
// DAG derives execution order from declared dependencies.
func All() []pipeline.Step {
	return []pipeline.Step{
		// Staging: decode raw payloads into typed rows.
		StgListens(),
		StgListenArtists(),
		StgLocalFiles(),
		StgFeedback(),
		StgSimilarUserActivity(),

		// Catalog: relationship graph and display metadata.
		CatalogLinks(),
		CatalogEntities(),
		CatalogArtistPopularity(),

		// Entity resolution.
		MapFileRecording(),
		MapFileRelease(),
		MapFileReleaseGroup(),
		MapFileArtist(),
		ListenResolution(),
		ListenArtistResolution(),

		// Listening statistics.
		ListenerReleaseGroupStats(),
		ListenerRecordingStats(),
		ListenerArtistCounts(),
		FileListenCounts(),

		// Rediscovery and recommendation candidates.
		RevisitReleases(),
		RevisitTracks(),
		FreshReleases(),
		ArtistRecommends(),
		LibraryAdditions(),

		// Curation.
		LovedTracks(),
		PlaylistFileCounts(),
	}
}
