// Package timezones serves the IANA zones a clinic or practitioner can be
// configured with. Each option carries the zone's current UTC offset so a
// picker can show "America/New_York (UTC-05:00)" without client-side tz data.
//
// The handler answers GET and HEAD with {"data": [...]} and supports a search
// query, a result limit and an exact zone lookup.
package timezones
