// Package cloud owns the point-cloud data model shared by every entry point:
// Point, Header and Cloud, plus the two normalisation steps applied on every
// path (NaN removal before segmentation, label-0 removal after it) and the
// packed binary codec used on the message bus.
//
// Dependency rule: cloud depends on nothing else in this module.
package cloud
