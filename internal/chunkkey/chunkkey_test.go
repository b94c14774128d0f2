package chunkkey

import (
	"testing"

	"github.com/google/uuid"
)

func TestPackedIDDistinguishesWorlds(t *testing.T) {
	w1, w2 := uuid.New(), uuid.New()
	k1 := Key{World: w1, X: 5, Z: -3}
	k2 := Key{World: w2, X: 5, Z: -3}
	if k1.PackedID() == k2.PackedID() {
		t.Fatalf("PackedID collided across worlds for the same (x, z)")
	}
}

func TestPackedIDStableForSameKey(t *testing.T) {
	w := uuid.New()
	k := Key{World: w, X: 12, Z: 34}
	if k.PackedID() != k.PackedID() {
		t.Fatalf("PackedID is not stable")
	}
}

func TestMortonDistinctForDifferentCoords(t *testing.T) {
	a := Key{X: 1, Z: 2}.Morton()
	b := Key{X: 2, Z: 1}.Morton()
	if a == b {
		t.Fatalf("Morton codes collided for (1,2) and (2,1)")
	}
}
