// archivectl is the administrator console for the monthly attendance archive.
//
// Usage:
//
//	# Show the current month, the cleanup target and the available actions
//	archivectl status
//
//	# Download exports into ARCHIVE_DOWNLOAD_DIR
//	archivectl export attendance --start 2025-02-01 --end 2025-02-28
//	archivectl export monthly --year 2025 --month 2
//
//	# Lifecycle actions, each asks for confirmation first
//	archivectl mark-complete
//	archivectl cleanup --emergency
//	archivectl clear-all
package main

func main() {
	Execute()
}
