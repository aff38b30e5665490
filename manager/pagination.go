package manager

import "github.com/cyrup-ai/kodegen-claude-agent/session"

// paginateMessages implements the offset/length pagination rule from
// SPEC_FULL.md 4.C6:
//
//	offset >= 0: return length entries starting at offset in insertion
//	             order; has_more = (offset + returned < total).
//	offset < 0:  tail mode — return the last |offset| entries preserving
//	             insertion order; length is ignored; has_more = false.
func paginateMessages(all []session.MessageRecord, offset, length int) (page []session.MessageRecord, hasMore bool) {
	total := len(all)

	if offset < 0 {
		n := -offset
		if n > total {
			n = total
		}
		return all[total-n:], false
	}

	if offset >= total || length <= 0 {
		return nil, calculateHasMore(offset, 0, total)
	}

	end := offset + length
	if end > total {
		end = total
	}
	page = all[offset:end]
	return page, calculateHasMore(offset, len(page), total)
}

// calculateHasMore reports whether more records remain after returned items
// starting at offset, out of total.
func calculateHasMore(offset, returned, total int) bool {
	return offset+returned < total
}
