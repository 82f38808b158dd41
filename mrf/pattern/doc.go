// Literal and regular-expression text patterns, as used in moderation policy configuration.
package pattern
