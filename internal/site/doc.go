// Package site owns the content served by the website: parsed page
// templates, the blog index and the image gallery.
//
// All three live in a Cache. Readers take a read lock for the duration of a
// lookup only. Reloads read and parse everything from disk without holding
// the lock and then swap the new values in, so a failed reload leaves the
// previous content in place.
package site
