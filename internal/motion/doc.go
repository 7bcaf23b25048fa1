// Package motion turns camera frames into a per-frame change signal.
//
// An Engine keeps whatever history its mode needs (a running average of the
// scene in contours mode, the previous gray frame in threshold mode) and
// produces a binary change mask for every frame. The mask is reduced to a
// percentage of changed area, the regions it is made of, and whether one of
// those regions starts inside the inner rectangle of the frame. Moving turns
// the percentage into a yes/no decision.
package motion
