// Package report renders the periodic outreach and medical trend reports
// from a Context Store snapshot and publishes them to sinks.
//
// Generation is a pure function of the snapshot, the kind and as_of: the
// window is [as_of - window, as_of), iteration is sorted and the wall
// clock is never read, so the same inputs give byte-identical content.
package report
