// Package permission defines the tag vocabulary used for authorization and
// small set operations over it.
//
// Authorization is claim-based: every account carries a list of tag names,
// the list is denormalized into each issued token, and guards check the
// decoded set without touching storage. Two fixed sets anchor the model:
// [Unauthenticated] for requests without credentials and [DefaultUser] for
// freshly registered accounts.
package permission
