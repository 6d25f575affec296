// Package rate implements Redis fixed-window counters that throttle sign-in
// attempts by client IP and by submitted email.
package rate
