package main

/*
#include <stdint.h>

#ifdef _WIN32
#include <windows.h>
static uint64_t current_thread_id(void) { return (uint64_t)GetCurrentThreadId(); }
#else
#include <pthread.h>
static uint64_t current_thread_id(void) { return (uint64_t)(uintptr_t)pthread_self(); }
#endif
*/
import "C"

// threadID names the OS thread of the C caller. An exported function runs
// on the thread that called it, so this is the caller's thread.
func threadID() uint64 {
	return uint64(C.current_thread_id())
}
