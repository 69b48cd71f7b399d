package workflow

import (
	"fmt"

	"github.com/softcover/bowdler/core/errors"
	"github.com/softcover/bowdler/core/manuscript"
)

// Accept records an accepted review decision on one block and advances the
// owning section's workflow statuses if the decision was the last one
// outstanding.
func Accept(doc *manuscript.Document, sectionSeq int, blockID string) error {
	return review(doc, sectionSeq, blockID, func(b *manuscript.ChangeBlock) error {
		return b.Review(manuscript.ReviewAccepted)
	})
}

// Reject records a rejected review decision: the original text stands.
func Reject(doc *manuscript.Document, sectionSeq int, blockID string) error {
	return review(doc, sectionSeq, blockID, func(b *manuscript.ChangeBlock) error {
		return b.Review(manuscript.ReviewRejected)
	})
}

// EditManual replaces a block's cleaned text with reviewer-supplied text
// and marks the block manual. Valid on pending and already-reviewed blocks.
func EditManual(doc *manuscript.Document, sectionSeq int, blockID, text string) error {
	return review(doc, sectionSeq, blockID, func(b *manuscript.ChangeBlock) error {
		return b.EditManual(text)
	})
}

func review(doc *manuscript.Document, sectionSeq int, blockID string, apply func(*manuscript.ChangeBlock) error) error {
	sec := doc.Section(sectionSeq)
	if sec == nil {
		return errors.NewNotFound("section", fmt.Sprintf("%d", sectionSeq))
	}
	b := sec.Block(blockID)
	if b == nil {
		return errors.NewNotFound("change block", blockID)
	}
	if err := apply(b); err != nil {
		return err
	}
	return settleSection(sec)
}

// settleSection moves every pending category status to reviewed once all
// blocks in the section carry a terminal decision.
func settleSection(sec *manuscript.Section) error {
	if !sec.AllReviewed() {
		return nil
	}
	for _, c := range manuscript.Categories {
		if sec.StatusFor(c) == manuscript.StatusPending {
			if err := sec.SetStatus(c, manuscript.StatusReviewed); err != nil {
				return err
			}
		}
	}
	return nil
}
