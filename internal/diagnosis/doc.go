// Package diagnosis turns a vehicle and symptom description into a
// structured Report.
//
// The provider is given a JSON schema reflected from Report and asked for
// JSON only. Replies are read leniently: code fences are stripped, unknown
// enum values are coerced to safe defaults and lists are capped. A reply
// with no summary or no named cause is rejected with ErrInvalidReport.
package diagnosis
