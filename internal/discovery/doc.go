// Package discovery persists the devices heard during discovery scans.
//
// Every candidate a bridge announces is upserted into the
// discovered_devices table keyed by (family, address), so repeated
// sightings across scans bump last_seen and seen_count rather than adding
// rows. Operators list candidates through the API and dismiss the ones
// they do not want; a dismissed device reappears if it is heard again.
package discovery
