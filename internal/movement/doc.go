// Package movement tracks short-lived price-movement annotations for
// odds cells. When a cell's price changes, the tracker records the
// direction of the change and clears it after a fixed window, so a
// display layer can flash moved cells without the movement state ever
// leaking into the odds data itself.
package movement
