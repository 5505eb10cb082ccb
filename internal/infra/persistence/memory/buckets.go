package memory

import (
	"encoding/json"
	"fmt"
)

// Bucket names used by durable stores that snapshot the state as JSON blobs.
const (
	BucketReagents    = "reagents"
	BucketRecipes     = "recipes"
	BucketExperiments = "experiments"
)

// Buckets lists the snapshot buckets in persistence order.
var Buckets = []string{BucketReagents, BucketRecipes, BucketExperiments}

// MarshalBucket encodes the part of the snapshot stored under bucket.
func MarshalBucket(snapshot Snapshot, bucket string) ([]byte, error) {
	switch bucket {
	case BucketReagents:
		return json.Marshal(snapshot.Reagents)
	case BucketRecipes:
		return json.Marshal(snapshot.Recipes)
	case BucketExperiments:
		return json.Marshal(snapshot.Experiments)
	default:
		return nil, fmt.Errorf("unknown bucket %q", bucket)
	}
}

// UnmarshalBucket decodes payload into the part of the snapshot named by bucket.
// Unknown buckets are ignored so older databases keep loading.
func UnmarshalBucket(snapshot *Snapshot, bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var target any
	switch bucket {
	case BucketReagents:
		target = &snapshot.Reagents
	case BucketRecipes:
		target = &snapshot.Recipes
	case BucketExperiments:
		target = &snapshot.Experiments
	default:
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}
