package transfer

const (
	// PartSize is the fixed multipart part size. Only the final part of
	// a file may be smaller.
	PartSize int64 = 5 * 1024 * 1024

	// MultipartThreshold is the size at and above which a file is
	// transferred as a multipart upload instead of a single PUT.
	MultipartThreshold int64 = 5 * 1024 * 1024
)

// Part is one already-uploaded multipart part as reported by ListParts.
type Part struct {
	Number int32
	Size   int64
	ETag   string
}

// PartPlan is one part that still needs uploading.
type PartPlan struct {
	Number int32
	Offset int64
	Size   int64
}

// PlanParts computes the parts still missing from a file of the given
// size. Numbering is 1-based and contiguous; parts present in uploaded
// are skipped so resumption never re-sends a completed part. The
// returned alreadyUploaded is the byte count covered by skipped parts,
// counted as progress by the caller.
func PlanParts(size int64, uploaded []Part) (plans []PartPlan, alreadyUploaded int64) {
	have := make(map[int32]Part, len(uploaded))
	for _, p := range uploaded {
		have[p.Number] = p
	}

	var offset int64
	for number := int32(1); offset < size; number++ {
		partSize := PartSize
		if remaining := size - offset; remaining <= partSize {
			partSize = remaining
		}

		if p, ok := have[number]; ok {
			offset += p.Size
			alreadyUploaded += p.Size
			continue
		}

		plans = append(plans, PartPlan{Number: number, Offset: offset, Size: partSize})
		offset += partSize
	}
	return plans, alreadyUploaded
}
