package catalog_test

import (
	"testing"

	"github.com/xoltia/karaokeq/catalog"
)

func TestAvailable(t *testing.T) {
	if !catalog.Available("queen - bohemian rhapsody") {
		t.Error("expected listed song to be available")
	}
	if catalog.Available("unknown artist - unknown song") {
		t.Error("expected unknown song to be unavailable")
	}
}

func TestUnincludedSongsAreNotAvailable(t *testing.T) {
	if catalog.Available("rick astley - never gonna give you up") {
		t.Error("unincluded category leaked into the catalog")
	}
}

func TestFillerIsAvailable(t *testing.T) {
	if !catalog.Available(catalog.FillerSongID) {
		t.Error("filler song must be in the catalog")
	}
}

func TestFirstIsStable(t *testing.T) {
	if catalog.First() != "abba - dancing queen" {
		t.Errorf("unexpected first song %q", catalog.First())
	}
}
