// Package traffic derives usage patterns, trends, anomalies and maintenance
// window recommendations from hourly network traffic aggregates.
//
// Analysis is a pure function of its input. Hours and weekdays are read in
// the analyzer's location (UTC unless WithLocation is given), so a suggested
// downtime RRULE should be scheduled in that same timezone.
package traffic
