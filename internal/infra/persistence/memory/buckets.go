package memory

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// Bucket names used by snapshotting backends, one payload row per bucket.
const (
	BucketStudents = "students"
	BucketClasses  = "classes"
	BucketExams    = "exams"
)

// Buckets lists the persisted buckets in write order.
var Buckets = []string{BucketStudents, BucketClasses, BucketExams}

// EncodeBucket marshals a single bucket of the snapshot.
func (s Snapshot) EncodeBucket(bucket string) ([]byte, error) {
	switch bucket {
	case BucketStudents:
		return json.Marshal(s.Students)
	case BucketClasses:
		return json.Marshal(s.Classes)
	case BucketExams:
		return json.Marshal(s.Exams)
	default:
		return nil, fmt.Errorf("unknown bucket %q", bucket)
	}
}

// DecodeBucket unmarshals payload into the named bucket. Unknown buckets are
// ignored so older databases with retired buckets still load.
func (s *Snapshot) DecodeBucket(bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var target any
	switch bucket {
	case BucketStudents:
		target = &s.Students
	case BucketClasses:
		target = &s.Classes
	case BucketExams:
		target = &s.Exams
	default:
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}
