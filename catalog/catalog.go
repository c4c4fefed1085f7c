// Package catalog is the static list of songs that may be requested.
// TODO: allow a per-domain override list stored in sidekv.
package catalog

import (
	_ "embed"
	"encoding/json"
	"slices"
)

//go:embed songlist.json
var songlistData []byte

// FillerSongID pads short simple-queue output; the display client
// misbehaves on lists under ten lines.
const FillerSongID = "intermission - please hold"

var ids []string

func init() {
	var categories map[string][]string
	if err := json.Unmarshal(songlistData, &categories); err != nil {
		panic(err)
	}
	for category, songs := range categories {
		if category == "unincluded" {
			continue
		}
		ids = append(ids, songs...)
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)
}

// Available reports whether a song id may be requested.
func Available(id string) bool {
	_, found := slices.BinarySearch(ids, id)
	return found
}

// IDs returns all requestable song ids in sorted order.
func IDs() []string {
	return slices.Clone(ids)
}

// First is the sentinel id an idle display client reports as currently
// playing before anything has been queued.
func First() string {
	return ids[0]
}
