// Command spanctl inspects the spanalloc size-class table and stress-tests
// the allocator.
package main

func main() {
	execute()
}
