// SPDX-License-Identifier: GPL-3.0-or-later
package domain

//go:generate mockgen -destination=mocks/classify.go -package=mocks . Classifier

// Classifier annotates a message with display hints. It is an external
// collaborator: the ingestor calls it once per message and stores the result
// verbatim.
type Classifier interface {
	Classify(html, text string) Classification
}
