// Package crawler defines the shared domain types and interfaces of the site
// analyzer and implements Engine, which discovers a site's pages, fetches
// them with bounded concurrency and folds the extracted signals into a
// CrawlResult.
package crawler
