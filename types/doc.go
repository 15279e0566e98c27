// Package types provides core types used across the vaahai framework.
// This package has ZERO dependencies on other vaahai packages to avoid
// circular imports. All other packages should import types from here.
//
// The central type is Message: an envelope that is validated against a
// per-type content schema at construction time and immutable afterwards,
// except for the two narrow setters SetSenderID and SetConversationID.
package types
